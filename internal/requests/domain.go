// Package requests implements the approval-request lifecycle: submission,
// pending-only self-edits, a single terminal review, and deletion. State
// transitions are serialized at the persistence layer with conditional
// updates so concurrent reviewers can never overwrite each other.
package requests

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates what a request asks for.
type Type string

const (
	// TypeAPIKey asks for an API key to be issued.
	TypeAPIKey Type = "api_key"
	// TypeFilePublish asks for an uploaded file to be made public.
	TypeFilePublish Type = "file_publish"
	// TypeRoleUpgrade asks for a role change.
	TypeRoleUpgrade Type = "role_upgrade"
	// TypeFeatureAccess asks for access to a gated feature.
	TypeFeatureAccess Type = "feature_access"
)

// Status enumerates lifecycle states. Pending is the only non-terminal one.
type Status string

const (
	// StatusPending awaits review.
	StatusPending Status = "pending"
	// StatusApproved is terminal.
	StatusApproved Status = "approved"
	// StatusDenied is terminal.
	StatusDenied Status = "denied"
)

// Priority orders the review queue.
type Priority string

const (
	// PriorityLow is the lowest urgency.
	PriorityLow Priority = "low"
	// PriorityMedium is the default.
	PriorityMedium Priority = "medium"
	// PriorityHigh is the highest urgency.
	PriorityHigh Priority = "high"
)

// ValidType reports whether t is a known request type.
func ValidType(t Type) bool {
	switch t {
	case TypeAPIKey, TypeFilePublish, TypeRoleUpgrade, TypeFeatureAccess:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Request is one approval request.
type Request struct {
	ID            uuid.UUID         `json:"id"`
	Type          Type              `json:"type"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Status        Status            `json:"status"`
	Priority      Priority          `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RequesterID   int64             `json:"requester_id"`
	ReviewerID    *int64            `json:"reviewer_id,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewed_at,omitempty"`
	ReviewComment *string           `json:"review_comment,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Terminal reports whether the request has been reviewed.
func (r *Request) Terminal() bool {
	return r.Status == StatusApproved || r.Status == StatusDenied
}
