// Package mfa implements TOTP two-factor authentication with one-time recovery codes.
package mfa

import "errors"

var (
	// ErrTwoFactorRequired means 2FA is enabled and no code was submitted.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid means the submitted code matched neither TOTP nor an unused recovery code.
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")
	ErrNotEnabled       = errors.New("two-factor authentication is not enabled")
	ErrAlreadyEnabled   = errors.New("two-factor authentication is already enabled")
	ErrNotStarted       = errors.New("two-factor enrollment was not started")
	// ErrConcurrentRequestRaced means another request changed the 2FA state first.
	ErrConcurrentRequestRaced = errors.New("concurrent two-factor request raced")
	// ErrNotConfigured means no TOTP encryption key is configured.
	ErrNotConfigured = errors.New("two-factor encryption key is not configured")
)
