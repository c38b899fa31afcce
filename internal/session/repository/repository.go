package repository

import (
	"context"

	"transcendence/backend/internal/security"
	"transcendence/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Lookups return (nil, nil) when
// no row matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	GetByID(ctx context.Context, id int64) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, hash security.SessionTokenHash) (*domain.Session, error)
	GetByUserAndDevice(ctx context.Context, userID int64, deviceID string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error)
	// ListIDsByActivity returns the user's session ids, most recently used first.
	ListIDsByActivity(ctx context.Context, userID int64) ([]int64, error)
	// Rotate applies r only if the row still carries expected. It returns
	// (nil, nil) when another rotation won or the row is gone.
	Rotate(ctx context.Context, id int64, expected security.SessionTokenHash, r domain.Rotation) (*domain.Session, error)
	Deauthenticate(ctx context.Context, userID int64, ids []int64) (int64, error)
	DeauthenticateOthers(ctx context.Context, userID, keepID int64) (int64, error)
	Delete(ctx context.Context, userID int64, ids []int64) (int64, error)
}
