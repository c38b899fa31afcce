package domain

import (
	"errors"
	"time"
)

var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNicknameTaken is returned when registering a nickname that already exists.
	ErrNicknameTaken = errors.New("nickname already taken")
)

// User is the core user entity.
type User struct {
	ID              int64
	Email           string
	Nickname        string
	PasswordHash    string
	TOTPEnabled     bool
	TOTPSecretEnc   *string    // base64 nonce||ciphertext; set while pending or enabled
	TOTPConfirmedAt *time.Time // set when 2FA was confirmed
	CreatedAt       time.Time
}

// TwoFactorState is the user's position in the 2FA lifecycle.
type TwoFactorState int

const (
	TwoFactorDisabled TwoFactorState = iota
	TwoFactorPending
	TwoFactorEnabled
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorPending:
		return "pending"
	case TwoFactorEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// TwoFactorState derives the lifecycle state from the TOTP columns.
func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TOTPEnabled:
		return TwoFactorEnabled
	case u.TOTPSecretEnc != nil:
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}
