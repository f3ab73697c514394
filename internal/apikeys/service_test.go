package apikeys

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

type memoryRepo struct {
	mu       sync.Mutex
	keys     map[uuid.UUID]*APIKey
	accounts map[int64]*KeyHolder
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{keys: map[uuid.UUID]*APIKey{}, accounts: map[int64]*KeyHolder{}}
}

func (m *memoryRepo) addAccount(id int64, role rbac.Role, active bool) {
	m.accounts[id] = &KeyHolder{
		Role:        string(role),
		Permissions: rbac.PermissionsForRole(role),
		IsActive:    active,
	}
}

func (m *memoryRepo) Insert(_ context.Context, key *APIKey) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *key
	stored.CreatedAt = time.Now()
	m.keys[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.keys[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (m *memoryRepo) FindHolderByHash(_ context.Context, hash string) (*KeyHolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.Hash != hash {
			continue
		}
		account, ok := m.accounts[key.AccountID]
		if !ok {
			return nil, httpx.ErrNotFound
		}
		holder := *account
		holder.Key = *key
		return &holder, nil
	}
	return nil, httpx.ErrNotFound
}

func (m *memoryRepo) ListForAccount(_ context.Context, accountID int64) ([]APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []APIKey
	for _, key := range m.keys {
		if key.AccountID == accountID {
			out = append(out, *key)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListAll(_ context.Context) ([]APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []APIKey
	for _, key := range m.keys {
		out = append(out, *key)
	}
	return out, nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *memoryRepo) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := int64(len(m.keys))
	m.keys = map[uuid.UUID]*APIKey{}
	return purged, nil
}

func (m *memoryRepo) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.keys[id]; ok {
		now := time.Now()
		stored.LastUsedAt = &now
	}
	return nil
}

func principalWithRole(id int64, role rbac.Role) *rbac.Principal {
	return &rbac.Principal{
		ID:          id,
		Role:        role,
		Permissions: rbac.PermissionsForRole(role),
		IsActive:    true,
	}
}

func TestCreateReturnsPlaintextOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	contributor := principalWithRole(5, rbac.RoleContributor)

	key, plaintext, err := svc.Create(context.Background(), contributor, "ci key")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(plaintext, "rvk_"))
	require.Equal(t, plaintext[:12], key.Prefix)
	require.NotEqual(t, plaintext, key.Hash)

	// The stored record never contains the plaintext.
	stored, err := repo.FindByID(context.Background(), key.ID)
	require.NoError(t, err)
	require.Equal(t, hashToken(plaintext), stored.Hash)
}

func TestCreateDeniedForViewer(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	viewer := principalWithRole(9, rbac.RoleViewer)

	_, _, err := svc.Create(context.Background(), viewer, "nope")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestRevokeOwnershipScoping(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	owner := principalWithRole(5, rbac.RoleContributor)
	other := principalWithRole(6, rbac.RoleContributor)
	admin := principalWithRole(1, rbac.RoleAdmin)

	key, _, err := svc.Create(context.Background(), owner, "ci key")
	require.NoError(t, err)

	// A foreign key reads as absent, not forbidden.
	require.ErrorIs(t, svc.Revoke(context.Background(), other, key.ID), httpx.ErrNotFound)

	// The admin role is privileged and may revoke anyone's key.
	require.NoError(t, svc.Revoke(context.Background(), admin, key.ID))

	key2, _, err := svc.Create(context.Background(), owner, "second")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), owner, key2.ID))
}

func TestRevokeAllRequiresDeleteAll(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	contributor := principalWithRole(5, rbac.RoleContributor)
	admin := principalWithRole(1, rbac.RoleAdmin)

	_, _, err := svc.Create(context.Background(), contributor, "one")
	require.NoError(t, err)
	_, _, err = svc.Create(context.Background(), contributor, "two")
	require.NoError(t, err)

	_, err = svc.RevokeAll(context.Background(), contributor)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	purged, err := svc.RevokeAll(context.Background(), admin)
	require.NoError(t, err)
	require.Equal(t, int64(2), purged)
}

func TestResolveAuthenticatesKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(5, rbac.RoleContributor, true)
	svc := NewService(repo, nil)
	contributor := principalWithRole(5, rbac.RoleContributor)

	key, plaintext, err := svc.Create(context.Background(), contributor, "ci key")
	require.NoError(t, err)

	principal, err := svc.Resolve(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, int64(5), principal.ID)
	require.Equal(t, rbac.RoleContributor, principal.Role)

	stored, err := repo.FindByID(context.Background(), key.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
}

func TestResolveCollapsesFailures(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(5, rbac.RoleContributor, false)
	svc := NewService(repo, nil)
	contributor := principalWithRole(5, rbac.RoleContributor)

	_, plaintext, err := svc.Create(context.Background(), contributor, "ci key")
	require.NoError(t, err)

	// Unknown token and deactivated holder look identical to the caller.
	_, err = svc.Resolve(context.Background(), "rvk_deadbeef")
	require.ErrorIs(t, err, httpx.ErrUnauthenticated)

	_, err = svc.Resolve(context.Background(), plaintext)
	require.ErrorIs(t, err, httpx.ErrUnauthenticated)
}
