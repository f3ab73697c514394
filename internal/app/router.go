package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/requestvault/requestvault/internal/apikeys"
	"github.com/requestvault/requestvault/internal/auth"
	"github.com/requestvault/requestvault/internal/files"
	"github.com/requestvault/requestvault/internal/notify"
	"github.com/requestvault/requestvault/internal/observability"
	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/requests"
	"github.com/requestvault/requestvault/internal/users"
	"github.com/requestvault/requestvault/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthService   *auth.Service
	APIKeyService *apikeys.Service

	AuthHandler     *auth.Handler
	RequestsHandler *requests.Handler
	FilesHandler    *files.Handler
	APIKeysHandler  *apikeys.Handler
	UsersHandler    *users.Handler
	NotifyHandler   *notify.Handler
	RBACHandler     *rbac.Handler
	JobHandler      *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with RequestVault defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/auth", params.AuthHandler.MountPublicRoutes)

	r.Group(func(r chi.Router) {
		r.Use(authenticator(params.AuthService, params.APIKeyService))

		r.Route("/me", func(r chi.Router) {
			params.AuthHandler.MountProtectedRoutes(r)
			if params.UsersHandler != nil {
				params.UsersHandler.MountProfileRoutes(r)
			}
		})
		r.Route("/requests", params.RequestsHandler.MountRoutes)
		r.Route("/files", params.FilesHandler.MountRoutes)
		r.Route("/apikeys", params.APIKeysHandler.MountRoutes)
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.NotifyHandler != nil {
			r.Route("/notifications", params.NotifyHandler.MountRoutes)
		}
		if params.RBACHandler != nil {
			r.Route("/rbac", params.RBACHandler.MountRoutes)
		}
	})

	return r
}

// apiKeyHeader carries the alternative machine credential.
const apiKeyHeader = "X-API-Key"

// authenticator resolves either a bearer session token or an API key into a
// principal. All failures collapse into a generic 401.
func authenticator(authService *auth.Service, keyService *apikeys.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get(apiKeyHeader); key != "" && keyService != nil {
				principal, err := keyService.Resolve(r.Context(), key)
				if err != nil {
					httpx.RespondError(w, httpx.ErrUnauthenticated)
					return
				}
				next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal)))
				return
			}
			authService.Authenticator(next).ServeHTTP(w, r)
		})
	}
}
