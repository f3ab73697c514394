package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func requestWithPrincipal(p *Principal) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if p != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), p))
	}
	return req
}

func TestRequireAnyMissingPrincipal(t *testing.T) {
	mw := Middleware{}
	rr := httptest.NewRecorder()
	mw.RequireAny(PermFilesDownload)(okHandler()).ServeHTTP(rr, requestWithPrincipal(nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAnyDenied(t *testing.T) {
	mw := Middleware{}
	p := Principal{ID: 3, Role: RoleViewer, Permissions: PermissionsForRole(RoleViewer)}
	rr := httptest.NewRecorder()
	mw.RequireAny(PermFilesUpload)(okHandler()).ServeHTTP(rr, requestWithPrincipal(&p))
	require.Equal(t, http.StatusForbidden, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, []string{PermFilesUpload}, problem.Required)
}

func TestRequireAnyAllowed(t *testing.T) {
	mw := Middleware{}
	p := Principal{ID: 3, Role: RoleViewer, Permissions: PermissionsForRole(RoleViewer)}
	rr := httptest.NewRecorder()
	mw.RequireAny(PermFilesUpload, PermFilesDownload)(okHandler()).ServeHTTP(rr, requestWithPrincipal(&p))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireAnyEmptyMeansAuthenticated(t *testing.T) {
	mw := Middleware{}
	p := Principal{ID: 3, Role: RoleViewer}
	rr := httptest.NewRecorder()
	mw.RequireAny()(okHandler()).ServeHTTP(rr, requestWithPrincipal(&p))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	mw.RequireAny()(okHandler()).ServeHTTP(rr, requestWithPrincipal(nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRoles(t *testing.T) {
	mw := Middleware{}
	p := Principal{ID: 3, Role: RoleContributor}
	rr := httptest.NewRecorder()
	mw.RequireRoles(RoleAdmin)(okHandler()).ServeHTTP(rr, requestWithPrincipal(&p))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	mw.RequireRoles(RoleAdmin, RoleContributor)(okHandler()).ServeHTTP(rr, requestWithPrincipal(&p))
	require.Equal(t, http.StatusNoContent, rr.Code)
}
