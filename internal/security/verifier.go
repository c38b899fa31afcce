package security

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is the only failure PasswordVerifier reports for a
// wrong password or an absent account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyPassword is hashed once at construction so lookups for unknown
// accounts spend the same argon2 work as real ones.
const dummyPassword = "transcendence-dummy-password"

// PasswordVerifier checks submitted passwords against stored hashes without
// revealing whether the account exists.
type PasswordVerifier struct {
	hasher    *Hasher
	dummyHash string
}

// NewPasswordVerifier computes the dummy hash with hasher and returns a verifier.
func NewPasswordVerifier(hasher *Hasher) (*PasswordVerifier, error) {
	dummy, err := hasher.Hash([]byte(dummyPassword))
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &PasswordVerifier{hasher: hasher, dummyHash: dummy}, nil
}

// Verify returns nil when password matches storedHash. A nil storedHash means
// no account matched; the dummy hash is verified instead and the result is
// always ErrInvalidCredentials. Malformed stored hashes are internal errors.
func (v *PasswordVerifier) Verify(password string, storedHash *string) error {
	if storedHash == nil {
		_ = v.hasher.Compare(v.dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	err := v.hasher.Compare(*storedHash, []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPasswordMismatch):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("verify password: %w", err)
	}
}

// Hasher returns the hasher used for new hashes.
func (v *PasswordVerifier) Hasher() *Hasher {
	return v.hasher
}
