package repository

import (
	"context"

	"transcendence/backend/internal/user/domain"
)

// Repository defines persistence for users. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u and returns the stored row. Duplicate email or nickname
	// yields domain.ErrEmailTaken or domain.ErrNicknameTaken.
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	// UpdatePasswordHash swaps oldHash for newHash and reports whether the
	// stored hash still was oldHash.
	UpdatePasswordHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error)
	// ChangePassword stores hash and, when deauthExcept is non-nil, logs out
	// every other session of the user in the same transaction.
	ChangePassword(ctx context.Context, userID int64, hash string, deauthExcept *int64) error
}
