package apikeys

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// Handler wires HTTP endpoints for API key management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes attaches key management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(rbac.PermAPIKeysCreate)).Post("/", h.handleCreate)
	r.With(h.guard.RequireAny(rbac.PermAPIKeysView)).Get("/", h.handleList)
	r.With(h.guard.RequireAny(rbac.PermAPIKeysViewAll)).Get("/all", h.handleListAll)
	r.With(h.guard.RequireAny(rbac.PermAPIKeysManage)).Delete("/{id}", h.handleRevoke)
	r.With(h.guard.RequireAny(rbac.PermAPIKeysDeleteAll)).Delete("/", h.handleRevokeAll)
}

type createKeyRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
}

type createKeyResponse struct {
	Key   *APIKey `json:"key"`
	Token string  `json:"token"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	var req createKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ProblemValidation(w, err)
		return
	}
	key, plaintext, err := h.service.Create(r.Context(), principal, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createKeyResponse{Key: key, Token: plaintext})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	keys, err := h.service.List(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if keys == nil {
		keys = []APIKey{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	keys, err := h.service.ListAll(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if keys == nil {
		keys = []APIKey{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.Revoke(r.Context(), principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	purged, err := h.service.RevokeAll(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purged": purged})
}
