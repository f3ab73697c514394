// Package apikeys issues and manages bearer API keys. The plaintext token
// is returned exactly once at creation; only a SHA-256 digest is stored, so
// a leaked database never yields usable credentials.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// tokenPrefix marks RequestVault keys so they are recognizable in secret
// scanners and support tickets.
const tokenPrefix = "rvk_"

// APIKey is the stored representation of one issued key.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  int64      `json:"account_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// generateToken returns a fresh plaintext token and its stored digest.
func generateToken() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 24)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", err
	}
	plaintext = tokenPrefix + hex.EncodeToString(raw)
	return plaintext, plaintext[:12], hashToken(plaintext), nil
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
