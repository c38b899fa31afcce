package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"transcendence/backend/internal/db"
	"transcendence/backend/internal/security"
	"transcendence/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, token_hash, device_id, device_name, ip_address,
	created_at, refreshed_at, last_used_at, last_authenticated_at`

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a session repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts s and returns the stored row with its generated id.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (
			user_id, token_hash, device_id, device_name, ip_address,
			created_at, refreshed_at, last_used_at, last_authenticated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sessionColumns,
		s.UserID,
		s.TokenHash[:],
		s.DeviceID,
		nullString(s.DeviceName),
		nullString(s.IPAddress),
		s.CreatedAt,
		s.RefreshedAt,
		s.LastUsedAt,
		s.LastAuthenticatedAt,
	)
	out, err := scanSession(row)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("user_id", s.UserID).
			Wrap(err)
	}
	return out, nil
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return r.getOne(row, "SESSION_GET_BY_ID_FAILED", "id", id)
}

// GetByTokenHash returns the session whose current token hashes to hash, or nil.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, hash security.SessionTokenHash) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, hash[:])
	return r.getOne(row, "SESSION_GET_BY_TOKEN_FAILED", "operation", "get by token hash")
}

// GetByUserAndDevice returns the user's session on deviceID, or nil.
func (r *PostgresRepository) GetByUserAndDevice(ctx context.Context, userID int64, deviceID string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND device_id = $2
		ORDER BY last_used_at DESC
		LIMIT 1
	`, userID, deviceID)
	return r.getOne(row, "SESSION_GET_BY_DEVICE_FAILED", "user_id", userID)
}

func (r *PostgresRepository) getOne(row pgx.Row, code, key string, value any) (*domain.Session, error) {
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code(code).With(key, value).Wrap(err)
	}
	return s, nil
}

// ListByUser returns all sessions of the user, most recently used first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_used_at DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_LIST_FAILED").With("operation", "scan").Wrap(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").With("operation", "iterate").Wrap(err)
	}
	return out, nil
}

// ListIDsByActivity returns session ids ordered by last_used_at then created_at, newest first.
func (r *PostgresRepository) ListIDsByActivity(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_used_at DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_IDS_FAILED").With("user_id", userID).Wrap(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, oops.Code("SESSION_LIST_IDS_FAILED").With("operation", "collect").Wrap(err)
	}
	return ids, nil
}

// Rotate writes rot to session id if its token hash still equals expected.
func (r *PostgresRepository) Rotate(ctx context.Context, id int64, expected security.SessionTokenHash, rot domain.Rotation) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET token_hash = $3,
		    device_id = $4,
		    device_name = $5,
		    ip_address = $6,
		    refreshed_at = $7,
		    last_used_at = $7,
		    last_authenticated_at = CASE WHEN $8 THEN $7 ELSE last_authenticated_at END
		WHERE id = $1 AND token_hash = $2
		RETURNING `+sessionColumns,
		id,
		expected[:],
		rot.TokenHash[:],
		rot.Client.DeviceID,
		nullString(rot.Client.DeviceName),
		nullString(rot.Client.IPAddress),
		rot.At,
		rot.Reauthenticated,
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_ROTATE_FAILED").With("session_id", id).Wrap(err)
	}
	return s, nil
}

// Deauthenticate sets last_authenticated_at to the epoch for the user's sessions in ids.
func (r *PostgresRepository) Deauthenticate(ctx context.Context, userID int64, ids []int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET last_authenticated_at = $3
		WHERE user_id = $1 AND id = ANY($2)
	`, userID, ids, domain.Epoch)
	if err != nil {
		return 0, oops.Code("SESSION_DEAUTH_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeauthenticateOthers sets last_authenticated_at to the epoch for every session of the user except keepID.
func (r *PostgresRepository) DeauthenticateOthers(ctx context.Context, userID, keepID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET last_authenticated_at = $3
		WHERE user_id = $1 AND id <> $2
	`, userID, keepID, domain.Epoch)
	if err != nil {
		return 0, oops.Code("SESSION_DEAUTH_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes the user's sessions in ids.
func (r *PostgresRepository) Delete(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s          domain.Session
		hash       []byte
		deviceName *string
		ip         *string
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&hash,
		&s.DeviceID,
		&deviceName,
		&ip,
		&s.CreatedAt,
		&s.RefreshedAt,
		&s.LastUsedAt,
		&s.LastAuthenticatedAt,
	); err != nil {
		return nil, err
	}
	h, err := security.SessionTokenHashFromBytes(hash)
	if err != nil {
		return nil, err
	}
	s.TokenHash = h
	if deviceName != nil {
		s.DeviceName = *deviceName
	}
	if ip != nil {
		s.IPAddress = *ip
	}
	return &s, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
