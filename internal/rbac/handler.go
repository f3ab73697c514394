package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Handler exposes the permission table for introspection and audit.
type Handler struct {
	rbac Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(rbac Middleware) *Handler {
	return &Handler{rbac: rbac}
}

// MountRoutes registers permission introspection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermUsersManage))
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles", h.listRolePermissions)
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permissions": AllPermissions(),
	})
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"roles": AllRolePermissions(),
	})
}
