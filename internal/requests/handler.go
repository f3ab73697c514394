package requests

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/shared"
)

// Handler wires HTTP endpoints for approval requests.
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

// MountRoutes attaches request routes. The review endpoint accepts holders
// of either review permission; the service enforces the exact one the
// decision needs.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/trail", h.handleTrail)
	r.Patch("/{id}", h.handleSelfEdit)
	r.Delete("/{id}", h.handleDelete)
	r.With(h.guard.RequireAny(rbac.PermRequestsCreate)).Post("/", h.handleSubmit)
	r.With(h.guard.RequireAny(rbac.PermRequestsApprove, rbac.PermRequestsReject)).Post("/{id}/review", h.handleReview)
}

func requestID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type submitRequest struct {
	Type        string            `json:"type" validate:"required,oneof=api_key file_publish role_upgrade feature_access"`
	Title       string            `json:"title" validate:"required,min=3,max=200"`
	Description string            `json:"description" validate:"required,min=10,max=2000"`
	Priority    string            `json:"priority" validate:"omitempty,oneof=low medium high"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,max=20"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ProblemValidation(w, err)
		return
	}
	created, err := h.service.Submit(r.Context(), principal, SubmitInput{
		Type:        Type(req.Type),
		Title:       req.Title,
		Description: req.Description,
		Priority:    Priority(req.Priority),
		Metadata:    req.Metadata,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	query := r.URL.Query()

	filter := Filter{}
	filter.Page, filter.PerPage = shared.ParsePage(query)
	if v := query.Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := query.Get("type"); v != "" {
		typ := Type(v)
		filter.Type = &typ
	}

	items, page, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Request{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requests":   items,
		"pagination": page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	req, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	events, err := h.service.Trail(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if events == nil {
		events = []shared.ReviewEvent{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

type editRequest struct {
	Title       *string           `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string           `json:"description" validate:"omitempty,min=10,max=2000"`
	Priority    *string           `json:"priority" validate:"omitempty,oneof=low medium high"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,max=20"`
}

func (h *Handler) handleSelfEdit(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ProblemValidation(w, err)
		return
	}
	input := EditInput{
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		input.Priority = &p
	}
	updated, err := h.service.SelfEdit(r.Context(), principal, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved denied"`
	Comment  string `json:"comment" validate:"omitempty,max=1000"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ProblemValidation(w, err)
		return
	}
	reviewed, err := h.service.Review(r.Context(), principal, id, Status(req.Decision), req.Comment)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reviewed)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
