package rbac

import (
	"log/slog"
	"net/http"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

// Middleware wires the authorization gates into chi route groups. It expects
// an upstream authenticator to have placed the principal in the request
// context; a missing principal is an authentication failure, not an
// authorization one.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny allows the request through when the principal holds at least
// one of the listed permissions. With no arguments it only requires an
// authenticated principal.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if AllowAnyPermission(*principal, perms...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied",
					slog.Int64("user_id", principal.ID),
					slog.Any("required", perms),
				)
			}
			httpx.ProblemForbidden(w, perms)
		})
	}
}

// RequireRoles allows the request through when the principal's role is in
// the listed set. With no arguments it only requires an authenticated
// principal.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if AllowRoles(*principal, roles...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("role denied",
					slog.Int64("user_id", principal.ID),
					slog.String("role", string(principal.Role)),
				)
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
