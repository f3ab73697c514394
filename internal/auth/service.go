package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

const totpIssuer = "RequestVault"

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger, now: time.Now}
}

// RegisterInput carries self-service registration fields.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a viewer account. The permission set is derived from the
// role here, exactly once; it is never recomputed on later saves.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	account := &Account{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         rbac.RoleViewer,
		Permissions:  rbac.PermissionsForRole(rbac.RoleViewer),
		IsActive:     true,
	}
	created, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		if errors.Is(err, httpx.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", httpx.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

// Login validates the first authentication factor. Unknown email, wrong
// password, and deactivated accounts all collapse into the same
// unauthenticated outcome so callers cannot probe for account existence.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !account.IsActive {
		return nil, httpx.ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, httpx.ErrUnauthenticated
	}

	if account.TOTPEnabled {
		token, err := s.tokens.IssuePending(account.ID)
		if err != nil {
			return nil, err
		}
		// No last-login update yet: login is not complete until the second
		// factor succeeds.
		return &LoginResult{Token: token, PendingSecondFactor: true, Account: account}, nil
	}

	token, err := s.tokens.IssueSession(account)
	if err != nil {
		return nil, err
	}
	s.stampLogin(ctx, account.ID)
	return &LoginResult{Token: token, Account: account}, nil
}

// CompleteTwoFactor exchanges a pending token plus a valid TOTP code for a
// full session token. Any failure collapses to the unauthenticated outcome.
func (s *Service) CompleteTwoFactor(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	claims, err := s.tokens.ParsePending(pendingToken)
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	id, err := claims.SubjectID()
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil || !account.IsActive || !account.TOTPEnabled {
		return nil, httpx.ErrUnauthenticated
	}
	if !totp.Validate(code, account.TOTPSecret) {
		return nil, httpx.ErrUnauthenticated
	}
	token, err := s.tokens.IssueSession(account)
	if err != nil {
		return nil, err
	}
	s.stampLogin(ctx, account.ID)
	return &LoginResult{Token: token, Account: account}, nil
}

// ResolveBearer turns a raw bearer token into a principal. This is the single
// authentication path for every protected endpoint.
func (s *Service) ResolveBearer(ctx context.Context, raw string) (*rbac.Principal, error) {
	if raw == "" {
		return nil, httpx.ErrUnauthenticated
	}
	claims, err := s.tokens.ParseSession(raw)
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	id, err := claims.SubjectID()
	if err != nil {
		return nil, httpx.ErrUnauthenticated
	}
	// A vanished or deactivated account yields the same outcome as a bad
	// signature to avoid leaking account existence.
	account, err := s.repo.FindByID(ctx, id)
	if err != nil || !account.IsActive {
		return nil, httpx.ErrUnauthenticated
	}
	return &rbac.Principal{
		ID:          account.ID,
		Email:       account.Email,
		Role:        account.Role,
		Permissions: account.Permissions,
		IsActive:    account.IsActive,
	}, nil
}

// EnrollTOTP provisions a new, unconfirmed second-factor secret.
func (s *Service) EnrollTOTP(ctx context.Context, accountID int64) (secret, url string, err error) {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if account.TOTPEnabled {
		return "", "", fmt.Errorf("%w: second factor already enabled", httpx.ErrConflict)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account.Email,
	})
	if err != nil {
		return "", "", err
	}
	if err := s.repo.SetTOTPSecret(ctx, accountID, key.Secret()); err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ConfirmTOTP activates the enrolled secret after a successful code check.
func (s *Service) ConfirmTOTP(ctx context.Context, accountID int64, code string) error {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TOTPSecret == "" {
		return fmt.Errorf("%w: no pending enrollment", httpx.ErrConflict)
	}
	if !totp.Validate(code, account.TOTPSecret) {
		return fmt.Errorf("%w: invalid code", httpx.ErrValidation)
	}
	return s.repo.EnableTOTP(ctx, accountID)
}

// DisableTOTP removes the second factor after verifying the password.
func (s *Service) DisableTOTP(ctx context.Context, accountID int64, password string) error {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return httpx.ErrUnauthenticated
	}
	return s.repo.DisableTOTP(ctx, accountID)
}

// ChangePassword rotates the credential after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return httpx.ErrUnauthenticated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, accountID, string(hash))
}

func (s *Service) stampLogin(ctx context.Context, accountID int64) {
	if err := s.repo.UpdateLastLogin(ctx, accountID, s.now().UTC()); err != nil {
		s.logger.Warn("stamp last login", slog.Int64("user_id", accountID), slog.Any("error", err))
	}
}
