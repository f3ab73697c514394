package apikeys

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// Service implements API key issuance, listing, revocation, and key-based
// authentication.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create issues a new key for the principal. The returned plaintext is the
// only time the full token is ever available.
func (s *Service) Create(ctx context.Context, principal *rbac.Principal, name string) (*APIKey, string, error) {
	if principal == nil {
		return nil, "", httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermAPIKeysCreate) {
		return nil, "", fmt.Errorf("key creation requires %s: %w", rbac.PermAPIKeysCreate, httpx.ErrForbidden)
	}
	plaintext, prefix, hash, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	stored, err := s.repo.Insert(ctx, &APIKey{
		ID:        uuid.New(),
		AccountID: principal.ID,
		Name:      name,
		Prefix:    prefix,
		Hash:      hash,
	})
	if err != nil {
		return nil, "", err
	}
	return stored, plaintext, nil
}

// List returns the principal's own keys.
func (s *Service) List(ctx context.Context, principal *rbac.Principal) ([]APIKey, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermAPIKeysView) {
		return nil, fmt.Errorf("listing keys requires %s: %w", rbac.PermAPIKeysView, httpx.ErrForbidden)
	}
	return s.repo.ListForAccount(ctx, principal.ID)
}

// ListAll returns every account's keys.
func (s *Service) ListAll(ctx context.Context, principal *rbac.Principal) ([]APIKey, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermAPIKeysViewAll) {
		return nil, fmt.Errorf("listing all keys requires %s: %w", rbac.PermAPIKeysViewAll, httpx.ErrForbidden)
	}
	return s.repo.ListAll(ctx)
}

// Revoke deletes one key. Admins may revoke any key; everyone else only
// their own, and a foreign key reads as absent.
func (s *Service) Revoke(ctx context.Context, principal *rbac.Principal, id uuid.UUID) error {
	if principal == nil {
		return httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermAPIKeysManage) {
		return fmt.Errorf("revoking keys requires %s: %w", rbac.PermAPIKeysManage, httpx.ErrForbidden)
	}
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.AllowOwnerOrPrivileged(*principal, key.AccountID, rbac.RoleAdmin) {
		return httpx.ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// RevokeAll purges every issued key across all accounts.
func (s *Service) RevokeAll(ctx context.Context, principal *rbac.Principal) (int64, error) {
	if principal == nil {
		return 0, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermAPIKeysDeleteAll) {
		return 0, fmt.Errorf("purging keys requires %s: %w", rbac.PermAPIKeysDeleteAll, httpx.ErrForbidden)
	}
	purged, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("purged api keys", slog.Int64("count", purged), slog.Int64("actor_id", principal.ID))
	return purged, nil
}

// Resolve authenticates a presented plaintext token and returns the owning
// account as a principal. All failure modes collapse into Unauthenticated.
func (s *Service) Resolve(ctx context.Context, plaintext string) (*rbac.Principal, error) {
	if plaintext == "" {
		return nil, httpx.ErrUnauthenticated
	}
	holder, err := s.repo.FindHolderByHash(ctx, hashToken(plaintext))
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !holder.IsActive {
		return nil, httpx.ErrUnauthenticated
	}
	if err := s.repo.TouchLastUsed(ctx, holder.Key.ID); err != nil {
		s.logger.Warn("touch api key", slog.String("key_id", holder.Key.ID.String()), slog.Any("error", err))
	}
	return &rbac.Principal{
		ID:          holder.Key.AccountID,
		Email:       holder.Email,
		Role:        rbac.Role(holder.Role),
		Permissions: holder.Permissions,
		IsActive:    holder.IsActive,
	}, nil
}
