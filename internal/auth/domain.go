// Package auth resolves bearer credentials into principals and runs the
// login, registration, and second-factor flows.
package auth

import (
	"time"

	"github.com/requestvault/requestvault/internal/rbac"
)

// Account is the stored user record as the auth module sees it.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	Permissions  []string
	IsActive     bool
	TOTPSecret   string
	TOTPEnabled  bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResult is returned from the first authentication factor.
type LoginResult struct {
	// Token is either a full session token or, when PendingSecondFactor is
	// set, a short-lived token accepted only by the second-factor endpoint.
	Token               string
	PendingSecondFactor bool
	Account             *Account
}
