// Package credentials checks account passwords without leaking whether an account exists.
package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"transcendence/backend/internal/security"
	userdomain "transcendence/backend/internal/user/domain"
)

// UserStore is the user persistence the checker needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error)
}

// Checker loads users and verifies their passwords.
type Checker struct {
	users    UserStore
	verifier *security.PasswordVerifier
	logger   *slog.Logger
}

// NewChecker returns a Checker. logger may be nil.
func NewChecker(users UserStore, verifier *security.PasswordVerifier, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{users: users, verifier: verifier, logger: logger}
}

// ByEmail returns the user when password matches. An unknown email and a wrong
// password both return security.ErrInvalidCredentials after the same hashing work.
func (c *Checker) ByEmail(ctx context.Context, email, password string) (*userdomain.User, error) {
	u, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return c.check(ctx, u, password)
}

// ByUserID re-verifies the password of an already authenticated user.
func (c *Checker) ByUserID(ctx context.Context, userID int64, password string) (*userdomain.User, error) {
	u, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return c.check(ctx, u, password)
}

// HashPassword hashes a new password with the current parameters.
func (c *Checker) HashPassword(password string) (string, error) {
	return c.verifier.Hasher().Hash([]byte(password))
}

func (c *Checker) check(ctx context.Context, u *userdomain.User, password string) (*userdomain.User, error) {
	var stored *string
	if u != nil {
		stored = &u.PasswordHash
	}
	if err := c.verifier.Verify(password, stored); err != nil {
		return nil, err
	}
	if c.verifier.Hasher().NeedsRehash(u.PasswordHash) {
		c.upgrade(ctx, u, password)
	}
	return u, nil
}

// upgrade replaces a legacy or outdated hash, but only while the stored hash is
// still the one just verified. Failures are logged only.
func (c *Checker) upgrade(ctx context.Context, u *userdomain.User, password string) {
	hash, err := c.HashPassword(password)
	if err != nil {
		c.logger.WarnContext(ctx, "rehash password failed", "user_id", u.ID, "error", err)
		return
	}
	swapped, err := c.users.UpdatePasswordHash(ctx, u.ID, u.PasswordHash, hash)
	if err != nil {
		c.logger.WarnContext(ctx, "store rehashed password failed", "user_id", u.ID, "error", err)
		return
	}
	if !swapped {
		c.logger.InfoContext(ctx, "password changed during rehash, keeping stored hash", "user_id", u.ID)
		return
	}
	u.PasswordHash = hash
}
