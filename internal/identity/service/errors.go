package service

import "errors"

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrMissingAccessToken  = errors.New("missing access token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrMissingSessionToken = errors.New("missing session token")
	ErrInvalidSessionToken = errors.New("invalid session token")
	ErrSessionNotFound     = errors.New("session not found")
	// ErrSessionMismatch means the session was rotated or reassigned since the caller last saw it.
	ErrSessionMismatch = errors.New("session mismatch")
	ErrNeedReauth      = errors.New("reauthentication required")
	// ErrDidLogout is not a failure: the request ended the caller's own session and cookies must be cleared.
	ErrDidLogout = errors.New("logged out")
)
