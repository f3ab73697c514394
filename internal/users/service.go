package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/requestvault/requestvault/internal/auth"
	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/shared"
)

// Auditor records administrative mutations best-effort.
type Auditor interface {
	Try(ctx context.Context, log shared.AuditLog)
}

// Service handles account administration. Every mutating operation is
// audit-logged with the acting administrator.
type Service struct {
	repo    Repository
	auditor Auditor
	logger  *slog.Logger
}

// NewService builds a Service instance. The auditor may be nil.
func NewService(repo Repository, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// List returns a page of accounts.
func (s *Service) List(ctx context.Context, page, perPage int) ([]auth.Account, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	accounts, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return accounts, shared.NewPagination(page, perPage, total), nil
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id int64) (*auth.Account, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateInput carries an administrator-created account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     rbac.Role
}

// Create provisions an account with the given role. The permission snapshot
// is derived from the role exactly once, here; later catalog edits never
// retroactively change it.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, input CreateInput) (*auth.Account, error) {
	if !rbac.IsKnownRole(input.Role) {
		return nil, fmt.Errorf("unknown role %q: %w", input.Role, httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, &auth.Account{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         input.Role,
		Permissions:  rbac.PermissionsForRole(input.Role),
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "user.create", created.ID, map[string]any{"role": string(input.Role)})
	return created, nil
}

// ChangeRole assigns a new role and resets the permission snapshot to that
// role's defaults. Explicit grants made before the change do not survive it.
func (s *Service) ChangeRole(ctx context.Context, actor *rbac.Principal, id int64, role rbac.Role) (*auth.Account, error) {
	if !rbac.IsKnownRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, httpx.ErrValidation)
	}
	if err := s.repo.UpdateRole(ctx, id, string(role), rbac.PermissionsForRole(role)); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "user.role_change", id, map[string]any{"role": string(role)})
	return s.repo.FindByID(ctx, id)
}

// SetPermissions rewrites the stored permission set. Unknown tokens are
// dropped, never stored: the catalog is closed.
func (s *Service) SetPermissions(ctx context.Context, actor *rbac.Principal, id int64, permissions []string) (*auth.Account, error) {
	normalized := rbac.NormalizePermissions(permissions)
	if err := s.repo.UpdatePermissions(ctx, id, normalized); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "user.permissions_change", id, map[string]any{"permissions": normalized})
	return s.repo.FindByID(ctx, id)
}

// SetActive activates or deactivates an account. Deactivating oneself is
// rejected for the same reason self-deletion is.
func (s *Service) SetActive(ctx context.Context, actor *rbac.Principal, id int64, active bool) (*auth.Account, error) {
	if actor != nil && actor.ID == id && !active {
		return nil, fmt.Errorf("cannot deactivate own account: %w", httpx.ErrForbidden)
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "user.set_active", id, map[string]any{"active": active})
	return s.repo.FindByID(ctx, id)
}

// Delete removes an account and everything it owns. Self-deletion is always
// rejected, regardless of any permission held: an instance must never lose
// its last administrator to a stray click.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, id int64) error {
	if actor != nil && actor.ID == id {
		return fmt.Errorf("cannot delete own account: %w", httpx.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actor, "user.delete", id, nil)
	return nil
}

// UpdateOwnName lets any authenticated account rename itself. Role and
// permissions are not reachable through this path.
func (s *Service) UpdateOwnName(ctx context.Context, principal *rbac.Principal, name string) (*auth.Account, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if err := s.repo.UpdateName(ctx, principal.ID, name); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, principal.ID)
}

func (s *Service) audit(ctx context.Context, actor *rbac.Principal, action string, subjectID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	s.auditor.Try(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: strconv.FormatInt(subjectID, 10),
		Meta:     meta,
	})
}
