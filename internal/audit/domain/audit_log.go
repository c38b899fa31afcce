package domain

import "time"

// AuditLog represents a security event. UserID is zero when the actor is unknown
// (e.g. a failed login for an email that does not exist).
type AuditLog struct {
	ID        string
	UserID    int64
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
