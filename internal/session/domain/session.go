package domain

import (
	"time"

	"transcendence/backend/internal/security"
)

// Epoch is written to LastAuthenticatedAt to kill a session. Every later reauth
// check on the row fails.
var Epoch = time.Unix(0, 0).UTC()

// Session is one logged-in client/device pairing. The row id is stable across
// rotations; TokenHash changes on every rotation.
type Session struct {
	ID                  int64
	UserID              int64
	TokenHash           security.SessionTokenHash
	DeviceID            string
	DeviceName          string
	IPAddress           string
	CreatedAt           time.Time
	RefreshedAt         time.Time // last rotation of any kind
	LastUsedAt          time.Time
	LastAuthenticatedAt time.Time // last credential-verifying rotation
}

// Client describes the device a request comes from.
type Client struct {
	DeviceID   string
	DeviceName string
	IPAddress  string
}

// Rotation is the set of fields written by a rotation.
type Rotation struct {
	TokenHash security.SessionTokenHash
	Client    Client
	At        time.Time
	// Reauthenticated advances LastAuthenticatedAt to At.
	Reauthenticated bool
}

// Apply returns a copy of s with the rotation's fields written.
func (r Rotation) Apply(s Session) Session {
	s.TokenHash = r.TokenHash
	s.DeviceID = r.Client.DeviceID
	s.DeviceName = r.Client.DeviceName
	s.IPAddress = r.Client.IPAddress
	s.RefreshedAt = r.At
	s.LastUsedAt = r.At
	if r.Reauthenticated {
		s.LastAuthenticatedAt = r.At
	}
	return s
}

// ReauthPolicy decides when a session must re-prove credentials.
type ReauthPolicy struct {
	// RollingWindow bounds the time since the last rotation.
	RollingWindow time.Duration
	// ForcedWindow bounds the time since the last credential proof, regardless of activity.
	ForcedWindow time.Duration
}

// DefaultReauthPolicy is 7 days rolling, 30 days forced.
func DefaultReauthPolicy() ReauthPolicy {
	return ReauthPolicy{
		RollingWindow: 7 * 24 * time.Hour,
		ForcedWindow:  30 * 24 * time.Hour,
	}
}

// RequiresReauth is true when refreshed_at <= now-rolling or
// last_authenticated_at <= now-forced. Exactly at a cutoff counts as expired.
func (p ReauthPolicy) RequiresReauth(s *Session, now time.Time) bool {
	return !s.RefreshedAt.After(now.Add(-p.RollingWindow)) ||
		!s.LastAuthenticatedAt.After(now.Add(-p.ForcedWindow))
}

// LoggedInUntil is the instant the forced window closes for s.
func (p ReauthPolicy) LoggedInUntil(s *Session) time.Time {
	return s.LastAuthenticatedAt.Add(p.ForcedWindow)
}

// RefreshableUntil is the instant the rolling window closes for s.
func (p ReauthPolicy) RefreshableUntil(s *Session) time.Time {
	return s.RefreshedAt.Add(p.RollingWindow)
}
