package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/requestvault/requestvault/internal/auth"
	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/shared"
)

// requestRow mirrors the request columns the account cascade touches.
type requestRow struct {
	requesterID int64
	reviewerID  *int64
	status      string
	reviewedAt  *time.Time
}

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	items    map[int64]*auth.Account
	requests map[string]*requestRow
}

func newMemoryRepo() *memoryRepo {
	// Start generated IDs above any principal IDs the tests construct
	// directly, so a created account never collides with a fixture actor.
	return &memoryRepo{nextID: 1000, items: map[int64]*auth.Account{}, requests: map[string]*requestRow{}}
}

func (m *memoryRepo) List(_ context.Context, limit, offset int) ([]auth.Account, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Account
	for _, a := range m.items {
		out = append(out, *a)
	}
	return out, len(m.items), nil
}

func (m *memoryRepo) FindByID(_ context.Context, id int64) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (m *memoryRepo) Create(_ context.Context, account *auth.Account) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Email == account.Email {
			return nil, httpx.ErrConflict
		}
	}
	m.nextID++
	stored := *account
	stored.ID = m.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.items[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memoryRepo) UpdateName(_ context.Context, id int64, name string) error {
	return m.update(id, func(a *auth.Account) { a.Name = name })
}

func (m *memoryRepo) UpdateRole(_ context.Context, id int64, role string, permissions []string) error {
	return m.update(id, func(a *auth.Account) {
		a.Role = rbac.Role(role)
		a.Permissions = permissions
	})
}

func (m *memoryRepo) UpdatePermissions(_ context.Context, id int64, permissions []string) error {
	return m.update(id, func(a *auth.Account) { a.Permissions = permissions })
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	return m.update(id, func(a *auth.Account) { a.IsActive = active })
}

// Delete applies the same cascade the SQL transaction does: requests the
// account submitted go away, requests it merely reviewed keep their terminal
// state with the reviewer reference cleared.
func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return httpx.ErrNotFound
	}
	for key, row := range m.requests {
		if row.requesterID == id {
			delete(m.requests, key)
			continue
		}
		if row.reviewerID != nil && *row.reviewerID == id {
			row.reviewerID = nil
		}
	}
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) update(id int64, fn func(*auth.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	fn(stored)
	stored.UpdatedAt = time.Now()
	return nil
}

type memoryAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memoryAuditor) Try(_ context.Context, log shared.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
}

func adminPrincipal(id int64) *rbac.Principal {
	return &rbac.Principal{
		ID:          id,
		Role:        rbac.RoleAdmin,
		Permissions: rbac.PermissionsForRole(rbac.RoleAdmin),
		IsActive:    true,
	}
}

func newTestService() (*Service, *memoryRepo, *memoryAuditor) {
	repo := newMemoryRepo()
	auditor := &memoryAuditor{}
	return NewService(repo, auditor, nil), repo, auditor
}

func TestCreateSnapshotsRolePermissions(t *testing.T) {
	svc, _, auditor := newTestService()
	admin := adminPrincipal(1)

	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email:    "carol@example.com",
		Name:     "Carol",
		Password: "correct horse battery",
		Role:     rbac.RoleContributor,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, rbac.PermissionsForRole(rbac.RoleContributor), created.Permissions)
	require.True(t, created.IsActive)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse battery")))

	require.Len(t, auditor.logs, 1)
	require.Equal(t, "user.create", auditor.logs[0].Action)
	require.Equal(t, int64(1), auditor.logs[0].ActorID)
}

func TestCreateRejectsUnknownRoleAndDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	admin := adminPrincipal(1)

	_, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "x@example.com", Name: "X", Password: "password123", Role: rbac.Role("superuser"),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(context.Background(), admin, CreateInput{
		Email: "x@example.com", Name: "X", Password: "password123", Role: rbac.RoleViewer,
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), admin, CreateInput{
		Email: "x@example.com", Name: "X2", Password: "password123", Role: rbac.RoleViewer,
	})
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestChangeRoleResetsSnapshot(t *testing.T) {
	svc, _, _ := newTestService()
	admin := adminPrincipal(1)
	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "v@example.com", Name: "V", Password: "password123", Role: rbac.RoleViewer,
	})
	require.NoError(t, err)

	// Grant something beyond the role first, then change the role: the
	// explicit grant must not survive.
	_, err = svc.SetPermissions(context.Background(), admin, created.ID,
		append(rbac.PermissionsForRole(rbac.RoleViewer), rbac.PermRequestsViewAll))
	require.NoError(t, err)

	updated, err := svc.ChangeRole(context.Background(), admin, created.ID, rbac.RoleContributor)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleContributor, updated.Role)
	require.ElementsMatch(t, rbac.PermissionsForRole(rbac.RoleContributor), updated.Permissions)
}

func TestSetPermissionsDropsUnknownTokens(t *testing.T) {
	svc, _, _ := newTestService()
	admin := adminPrincipal(1)
	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "v@example.com", Name: "V", Password: "password123", Role: rbac.RoleViewer,
	})
	require.NoError(t, err)

	updated, err := svc.SetPermissions(context.Background(), admin, created.ID, []string{
		rbac.PermFilesDownload,
		"rv.files.launchMissiles",
		rbac.PermFilesDownload, // duplicate
	})
	require.NoError(t, err)
	require.Equal(t, []string{rbac.PermFilesDownload}, updated.Permissions)
}

func TestSelfDeleteAlwaysRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	admin := adminPrincipal(1)
	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "root@example.com", Name: "Root", Password: "password123", Role: rbac.RoleAdmin,
	})
	require.NoError(t, err)

	self := adminPrincipal(created.ID)
	err = svc.Delete(context.Background(), self, created.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Still present.
	_, err = repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)

	// A different admin may delete the account.
	require.NoError(t, svc.Delete(context.Background(), admin, created.ID))
}

func TestDeleteReviewerAccountKeepsReviewedRequests(t *testing.T) {
	svc, repo, _ := newTestService()
	admin := adminPrincipal(1)

	reviewer, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "reviewer@example.com", Name: "R", Password: "password123", Role: rbac.RoleAdmin,
	})
	require.NoError(t, err)
	requester, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "requester@example.com", Name: "Q", Password: "password123", Role: rbac.RoleViewer,
	})
	require.NoError(t, err)

	reviewedAt := time.Now().Add(-time.Hour)
	repo.requests["r1"] = &requestRow{
		requesterID: requester.ID,
		reviewerID:  &reviewer.ID,
		status:      "approved",
		reviewedAt:  &reviewedAt,
	}
	repo.requests["r2"] = &requestRow{requesterID: reviewer.ID, status: "pending"}

	require.NoError(t, svc.Delete(context.Background(), admin, reviewer.ID))

	_, err = repo.FindByID(context.Background(), reviewer.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	// The reviewed request survives its reviewer: terminal state intact,
	// reviewer reference cleared.
	kept, ok := repo.requests["r1"]
	require.True(t, ok)
	require.Nil(t, kept.reviewerID)
	require.Equal(t, "approved", kept.status)
	require.NotNil(t, kept.reviewedAt)
	require.True(t, kept.reviewedAt.Equal(reviewedAt))
	require.Equal(t, requester.ID, kept.requesterID)

	// The reviewer's own submission is gone with the account.
	_, ok = repo.requests["r2"]
	require.False(t, ok)
}

func TestSelfDeactivateRejected(t *testing.T) {
	svc, _, _ := newTestService()
	admin := adminPrincipal(1)
	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "a@example.com", Name: "A", Password: "password123", Role: rbac.RoleAdmin,
	})
	require.NoError(t, err)

	self := adminPrincipal(created.ID)
	_, err = svc.SetActive(context.Background(), self, created.ID, false)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	deactivated, err := svc.SetActive(context.Background(), admin, created.ID, false)
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)
}

func TestUpdateOwnNameTouchesNothingElse(t *testing.T) {
	svc, _, _ := newTestService()
	admin := adminPrincipal(1)
	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "v@example.com", Name: "V", Password: "password123", Role: rbac.RoleViewer,
	})
	require.NoError(t, err)

	self := &rbac.Principal{ID: created.ID, Role: created.Role, Permissions: created.Permissions, IsActive: true}
	updated, err := svc.UpdateOwnName(context.Background(), self, "Vera")
	require.NoError(t, err)
	require.Equal(t, "Vera", updated.Name)
	require.Equal(t, created.Role, updated.Role)
	require.ElementsMatch(t, created.Permissions, updated.Permissions)
}
