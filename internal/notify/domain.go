// Package notify delivers per-account notifications: a persisted inbox,
// a Redis pub/sub fan-out consumed by the SSE stream, and a background
// email task. Delivery is fire-and-forget for callers: a failed delivery
// never fails the operation that triggered it.
package notify

import "time"

// Notification kinds.
const (
	KindRequestSubmitted = "request.submitted"
	KindRequestApproved  = "request.approved"
	KindRequestRejected  = "request.rejected"
)

// Notification is a persisted inbox entry for one account.
type Notification struct {
	ID        int64      `json:"id"`
	AccountID int64      `json:"-"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Notifier is the capability injected into services that emit notifications.
type Notifier interface {
	Notify(accountID int64, kind, message string)
}
