package files

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// maxUploadBytes caps a single multipart upload.
const maxUploadBytes = 64 << 20

// Handler wires HTTP endpoints for file management.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   *rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes attaches file routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.With(h.guard.RequireAny(rbac.PermFilesUpload)).Post("/", h.handleUpload)
	r.With(h.guard.RequireAny(rbac.PermFilesDownload)).Get("/{id}/content", h.handleDownload)
	r.With(h.guard.RequireAny(rbac.PermFilesMakePublic)).Post("/{id}/public", h.handleMakePublic)
}

func fileID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "expected a multipart upload")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", `missing "file" form field`)
		return
	}
	defer part.Close()

	var ttl time.Duration
	if v := r.FormValue("ttl_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "ttl_hours must be a non-negative integer")
			return
		}
		ttl = time.Duration(hours) * time.Hour
	}

	stored, err := h.service.Upload(r.Context(), principal, UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     part,
		TTL:         ttl,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []File{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"files": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := fileID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	f, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := fileID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	f, content, err := h.service.Download(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	if _, err := io.Copy(w, content); err != nil {
		h.logger.Warn("stream file", slog.String("file_id", f.ID.String()), slog.Any("error", err))
	}
}

func (h *Handler) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := fileID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	f, err := h.service.MakePublic(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	id, err := fileID(r)
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
