package repository

import (
	"context"

	"github.com/samber/oops"

	"transcendence/backend/internal/audit/domain"
	"transcendence/backend/internal/db"
)

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var uid *int64
	if a.UserID != 0 {
		uid = &a.UserID
	}
	var meta *string
	if a.Metadata != "" {
		meta = &a.Metadata
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	if err != nil {
		return oops.Code("AUDIT_CREATE_FAILED").
			With("action", a.Action).
			With("resource", a.Resource).
			Wrap(err)
	}
	return nil
}

// ListByUser returns the user's most recent audit logs, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit int32) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			uid  *int64
			meta *string
		)
		if err := rows.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_LIST_FAILED").With("user_id", userID).Wrap(err)
		}
		if uid != nil {
			a.UserID = *uid
		}
		if meta != nil {
			a.Metadata = *meta
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return out, nil
}
