package repository

import (
	"context"
	"time"
)

// Repository persists the TOTP columns of users and the recovery code batch.
// Every state transition is a conditional write; a false result means the
// expected prior state no longer holds.
type Repository interface {
	// StartEnrollment stores a pending secret while 2FA is not enabled.
	StartEnrollment(ctx context.Context, userID int64, secretEnc string) (bool, error)
	// ConfirmEnrollment enables 2FA if the pending secret is still secretEnc and
	// replaces the recovery codes, in one transaction.
	ConfirmEnrollment(ctx context.Context, userID int64, secretEnc string, codeHashes [][]byte, at time.Time) (bool, error)
	// Disable clears 2FA if it is enabled with secretEnc and deletes the recovery codes.
	Disable(ctx context.Context, userID int64, secretEnc string) (bool, error)
	// ConsumeRecoveryCode marks an unused code as used. True means exactly this call consumed it.
	ConsumeRecoveryCode(ctx context.Context, userID int64, codeHash []byte, at time.Time) (bool, error)
	CountUnusedRecoveryCodes(ctx context.Context, userID int64) (int, error)
}
