package auth

import (
	"net/http"
	"strings"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// BearerToken extracts the bearer credential from the Authorization header.
// Returns an empty string when absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticator resolves the bearer token into a principal and stores it in
// the request context. Requests without a resolvable full-session credential
// are rejected; pending second-factor tokens never pass this middleware.
func (s *Service) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.ResolveBearer(r.Context(), BearerToken(r))
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
