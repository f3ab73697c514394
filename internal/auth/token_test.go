package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requestvault/requestvault/internal/rbac"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 5*time.Minute)
	account := &Account{ID: 42, Role: rbac.RoleAdmin}

	raw, err := tm.IssueSession(account)
	require.NoError(t, err)

	claims, err := tm.ParseSession(raw)
	require.NoError(t, err)
	id, err := claims.SubjectID()
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.Equal(t, "admin", claims.Role)
	require.False(t, claims.PendingSecondFactor)
}

func TestParseSessionRejectsPendingToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 5*time.Minute)
	raw, err := tm.IssuePending(42)
	require.NoError(t, err)

	_, err = tm.ParseSession(raw)
	require.Error(t, err)

	claims, err := tm.ParsePending(raw)
	require.NoError(t, err)
	require.True(t, claims.PendingSecondFactor)
}

func TestParsePendingRejectsSessionToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 5*time.Minute)
	raw, err := tm.IssueSession(&Account{ID: 1, Role: rbac.RoleViewer})
	require.NoError(t, err)

	_, err = tm.ParsePending(raw)
	require.Error(t, err)
}

func TestParseSessionExpired(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 5*time.Minute)
	past := time.Now().Add(-3 * time.Hour)
	tm.now = func() time.Time { return past }
	raw, err := tm.IssueSession(&Account{ID: 1, Role: rbac.RoleViewer})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ParseSession(raw)
	require.Error(t, err)
}

func TestParseSessionWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour, 5*time.Minute)
	verifier := NewTokenManager("secret-b", time.Hour, 5*time.Minute)
	raw, err := issuer.IssueSession(&Account{ID: 1, Role: rbac.RoleViewer})
	require.NoError(t, err)

	_, err = verifier.ParseSession(raw)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Bearer tok-123")
	require.Equal(t, "tok-123", BearerToken(req))

	req.Header.Set("Authorization", "bearer tok-456")
	require.Equal(t, "tok-456", BearerToken(req))
}

func TestAuthenticatorMiddleware(t *testing.T) {
	svc, repo := newTestService(t)
	account := seedAccount(t, repo, "user@example.test", "correctpass", rbac.RoleContributor, true)
	login, err := svc.Login(context.Background(), "user@example.test", "correctpass")
	require.NoError(t, err)

	var seen *rbac.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = rbac.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rr := httptest.NewRecorder()
	svc.Authenticator(next).ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, account.ID, seen.ID)

	rr = httptest.NewRecorder()
	svc.Authenticator(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
