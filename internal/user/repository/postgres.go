package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"transcendence/backend/internal/db"
	sessiondomain "transcendence/backend/internal/session/domain"
	"transcendence/backend/internal/user/domain"
)

const userColumns = `id, email, nickname, password_hash, totp_enabled, totp_secret_enc, totp_confirmed_at, created_at`

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a user repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").With("id", id).Wrap(err)
	}
	return u, nil
}

// GetByEmail returns the user for email, or nil if not found. Callers pass the
// normalized (lowercased) address that Register stores.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return u, nil
}

// Create inserts u and returns the stored row.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, nickname, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		u.Email, u.Nickname, u.PasswordHash, u.CreatedAt,
	)
	out, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "nickname") {
				return nil, domain.ErrNicknameTaken
			}
			return nil, domain.ErrEmailTaken
		}
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return out, nil
}

// UpdatePasswordHash replaces oldHash with newHash. It reports false when the
// stored hash is no longer oldHash, e.g. after a concurrent password change.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $3 WHERE id = $1 AND password_hash = $2`,
		userID, oldHash, newHash,
	)
	if err != nil {
		return false, oops.Code("USER_UPDATE_PASSWORD_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ChangePassword stores hash and optionally deauthenticates other sessions atomically.
func (r *PostgresRepository) ChangePassword(ctx context.Context, userID int64, hash string, deauthExcept *int64) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash); err != nil {
			return err
		}
		if deauthExcept == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `
			UPDATE sessions SET last_authenticated_at = $3
			WHERE user_id = $1 AND id <> $2
		`, userID, *deauthExcept, sessiondomain.Epoch)
		return err
	})
	if err != nil {
		return oops.Code("USER_CHANGE_PASSWORD_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Nickname,
		&u.PasswordHash,
		&u.TOTPEnabled,
		&u.TOTPSecretEnc,
		&u.TOTPConfirmedAt,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
