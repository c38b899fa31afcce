package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"transcendence/backend/internal/db"
)

// errLostRace aborts a transaction whose guarding UPDATE matched no row.
var errLostRace = errors.New("conditional update matched no row")

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a 2FA repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// StartEnrollment overwrites any pending secret unless 2FA is already enabled.
func (r *PostgresRepository) StartEnrollment(ctx context.Context, userID int64, secretEnc string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET totp_secret_enc = $2, totp_confirmed_at = NULL
		WHERE id = $1 AND totp_enabled = FALSE
	`, userID, secretEnc)
	if err != nil {
		return false, oops.Code("TOTP_START_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConfirmEnrollment flips totp_enabled and replaces the recovery codes atomically.
func (r *PostgresRepository) ConfirmEnrollment(ctx context.Context, userID int64, secretEnc string, codeHashes [][]byte, at time.Time) (bool, error) {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET totp_enabled = TRUE, totp_confirmed_at = $3
			WHERE id = $1 AND totp_enabled = FALSE AND totp_secret_enc = $2
		`, userID, secretEnc, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return errLostRace
		}
		if _, err := tx.Exec(ctx, `DELETE FROM two_fa_recovery_codes WHERE user_id = $1`, userID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO two_fa_recovery_codes (user_id, code_hash, created_at)
			SELECT $1, h, $3 FROM unnest($2::bytea[]) AS h
		`, userID, codeHashes, at)
		return err
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("TOTP_CONFIRM_FAILED").With("user_id", userID).Wrap(err)
	}
	return true, nil
}

// Disable clears the TOTP columns and deletes the recovery codes atomically.
func (r *PostgresRepository) Disable(ctx context.Context, userID int64, secretEnc string) (bool, error) {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET totp_enabled = FALSE, totp_secret_enc = NULL, totp_confirmed_at = NULL
			WHERE id = $1 AND totp_enabled = TRUE AND totp_secret_enc = $2
		`, userID, secretEnc)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return errLostRace
		}
		_, err = tx.Exec(ctx, `DELETE FROM two_fa_recovery_codes WHERE user_id = $1`, userID)
		return err
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("TOTP_DISABLE_FAILED").With("user_id", userID).Wrap(err)
	}
	return true, nil
}

// ConsumeRecoveryCode sets used_at on an unused matching code.
func (r *PostgresRepository) ConsumeRecoveryCode(ctx context.Context, userID int64, codeHash []byte, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE two_fa_recovery_codes
		SET used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`, userID, codeHash, at)
	if err != nil {
		return false, oops.Code("RECOVERY_CODE_CONSUME_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnusedRecoveryCodes returns how many codes of the current batch remain.
func (r *PostgresRepository) CountUnusedRecoveryCodes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM two_fa_recovery_codes WHERE user_id = $1 AND used_at IS NULL
	`, userID).Scan(&n)
	if err != nil {
		return 0, oops.Code("RECOVERY_CODE_COUNT_FAILED").With("user_id", userID).Wrap(err)
	}
	return n, nil
}
