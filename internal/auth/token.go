package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "requestvault"

// Claims is the token payload. A pending second-factor token carries only
// the subject plus the twofa flag; role and permissions are never embedded
// in it.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
	// PendingSecondFactor marks the narrow token issued between the first
	// and second authentication factor. Every endpoint except second-factor
	// completion must reject tokens carrying it.
	PendingSecondFactor bool `json:"twofa,omitempty"`
}

// TokenManager signs and verifies session tokens with HS256.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	pendingTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, sessionTTL, pendingTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		pendingTTL: pendingTTL,
		leeway:     30 * time.Second,
		now:        time.Now,
	}
}

// IssueSession signs a full session token for the account.
func (tm *TokenManager) IssueSession(account *Account) (string, error) {
	now := tm.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("%d", account.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.sessionTTL)),
		},
		Role: string(account.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// IssuePending signs the short-lived token scoped to completing the second
// factor.
func (tm *TokenManager) IssuePending(accountID int64) (string, error) {
	now := tm.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("%d", accountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.pendingTTL)),
		},
		PendingSecondFactor: true,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithLeeway(tm.leeway),
		jwt.WithTimeFunc(func() time.Time { return tm.now() }),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}

// ParseSession verifies a full session token. Pending second-factor tokens
// are rejected here regardless of validity: the flag is gated explicitly,
// not merely the signature.
func (tm *TokenManager) ParseSession(raw string) (*Claims, error) {
	claims, err := tm.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.PendingSecondFactor {
		return nil, errors.New("auth: pending second-factor token not accepted")
	}
	return claims, nil
}

// ParsePending verifies a pending second-factor token and nothing else.
func (tm *TokenManager) ParsePending(raw string) (*Claims, error) {
	claims, err := tm.parse(raw)
	if err != nil {
		return nil, err
	}
	if !claims.PendingSecondFactor {
		return nil, errors.New("auth: second-factor completion requires a pending token")
	}
	return claims, nil
}

// SubjectID extracts the numeric account ID from the claims.
func (c *Claims) SubjectID() (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil || id <= 0 {
		return 0, errors.New("auth: malformed subject")
	}
	return id, nil
}
