// Package files handles upload, download, publication, and expiry of stored
// files. Content lives on disk under opaque names; metadata and visibility
// live in PostgreSQL.
package files

import (
	"time"

	"github.com/google/uuid"
)

// File is the stored metadata for one uploaded object.
type File struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Name        string     `json:"name"`
	StorageName string     `json:"-"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum"`
	IsPublic    bool       `json:"is_public"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
