package mfa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transcendence/backend/internal/mfa/repository"
	userdomain "transcendence/backend/internal/user/domain"
)

// PasswordChecker re-verifies the password of an authenticated user.
type PasswordChecker interface {
	ByUserID(ctx context.Context, userID int64, password string) (*userdomain.User, error)
}

// Auditor records security events. Best-effort.
type Auditor interface {
	LogEvent(ctx context.Context, userID int64, action, resource, metadata string)
}

// Observer counts code verifications by method ("totp" or "recovery").
type Observer interface {
	TwoFactorVerified(ctx context.Context, method string, ok bool)
}

// Config configures an Engine.
type Config struct {
	// Cipher encrypts secrets at rest. Nil disables 2FA operations with ErrNotConfigured.
	Cipher            *SecretCipher
	Issuer            string
	RecoveryCodeCount int
	Auditor           Auditor
	Observer          Observer
}

// Engine drives the per-user 2FA lifecycle: disabled, pending, enabled.
type Engine struct {
	creds         PasswordChecker
	repo          repository.Repository
	cipher        *SecretCipher
	totp          TOTP
	recoveryCount int
	auditor       Auditor
	observer      Observer
	now           func() time.Time
}

// NewEngine returns an Engine.
func NewEngine(creds PasswordChecker, repo repository.Repository, cfg Config) *Engine {
	n := cfg.RecoveryCodeCount
	if n <= 0 {
		n = DefaultRecoveryCodeCount
	}
	return &Engine{
		creds:         creds,
		repo:          repo,
		cipher:        cfg.Cipher,
		totp:          TOTP{Issuer: cfg.Issuer},
		recoveryCount: n,
		auditor:       cfg.Auditor,
		observer:      cfg.Observer,
		now:           time.Now,
	}
}

// Start generates a pending secret after re-verifying the password. Calling it
// again while pending replaces the secret. The returned enrollment is the only
// time the plaintext secret leaves the server.
func (e *Engine) Start(ctx context.Context, userID int64, password string) (*Enrollment, error) {
	u, err := e.creds.ByUserID(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	if u.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	if e.cipher == nil {
		return nil, ErrNotConfigured
	}
	secret, err := e.totp.NewSecret()
	if err != nil {
		return nil, err
	}
	enrollment, err := e.totp.Enroll(u.Email, secret)
	if err != nil {
		return nil, err
	}
	sealed, err := e.cipher.Seal(u.ID, secret)
	if err != nil {
		return nil, err
	}
	ok, err := e.repo.StartEnrollment(ctx, u.ID, sealed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyEnabled
	}
	return enrollment, nil
}

// Confirm enables 2FA when code is valid for the pending secret and returns a
// fresh batch of recovery codes, shown once.
func (e *Engine) Confirm(ctx context.Context, userID int64, password, code string) ([]string, error) {
	u, err := e.creds.ByUserID(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	if u.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	if u.TOTPSecretEnc == nil {
		return nil, ErrNotStarted
	}
	ok, err := e.checkTOTP(ctx, u, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTwoFactorInvalid
	}
	codes, hashes, err := GenerateRecoveryCodes(e.recoveryCount)
	if err != nil {
		return nil, err
	}
	// The update is conditioned on the secret validated above so a concurrent
	// Start or Confirm cannot be confirmed against the wrong secret.
	ok, err = e.repo.ConfirmEnrollment(ctx, u.ID, *u.TOTPSecretEnc, hashes, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentRequestRaced
	}
	e.audit(ctx, u.ID, "2fa_enabled", "")
	return codes, nil
}

// Disable turns 2FA off after verifying password and a TOTP or recovery code.
func (e *Engine) Disable(ctx context.Context, userID int64, password, code string) error {
	u, err := e.creds.ByUserID(ctx, userID, password)
	if err != nil {
		return err
	}
	if !u.TOTPEnabled || u.TOTPSecretEnc == nil {
		return ErrNotEnabled
	}
	if err := e.Verify(ctx, u, code); err != nil {
		return err
	}
	ok, err := e.repo.Disable(ctx, u.ID, *u.TOTPSecretEnc)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConcurrentRequestRaced
	}
	e.audit(ctx, u.ID, "2fa_disabled", "")
	return nil
}

// RequireIfEnabled is a no-op for users without 2FA; otherwise it verifies code.
func (e *Engine) RequireIfEnabled(ctx context.Context, u *userdomain.User, code string) error {
	if !u.TOTPEnabled {
		return nil
	}
	return e.Verify(ctx, u, code)
}

// RemainingRecoveryCodes returns the unused recovery codes left for the user.
func (e *Engine) RemainingRecoveryCodes(ctx context.Context, userID int64) (int, error) {
	return e.repo.CountUnusedRecoveryCodes(ctx, userID)
}

// Verify checks code against the user's TOTP secret and recovery codes.
//
// The code is classified by shape: 6 to 8 ASCII digits is tried as TOTP first,
// anything else as a recovery code first. Either way the other kind is tried
// before failing, so a mis-shaped but valid code is still accepted. This
// leniency is intentional; a strict dispatch would reject edge-case inputs
// that are plausibly either kind.
func (e *Engine) Verify(ctx context.Context, u *userdomain.User, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrTwoFactorRequired
	}
	if u.TOTPSecretEnc == nil {
		return fmt.Errorf("user %d has 2FA enabled without a secret", u.ID)
	}
	checks := []func(context.Context, *userdomain.User, string) (bool, error){e.checkTOTP, e.checkRecovery}
	if !looksLikeTOTP(code) {
		checks[0], checks[1] = checks[1], checks[0]
	}
	for _, check := range checks {
		ok, err := check(ctx, u, code)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrTwoFactorInvalid
}

func (e *Engine) checkTOTP(ctx context.Context, u *userdomain.User, code string) (bool, error) {
	if e.cipher == nil {
		return false, ErrNotConfigured
	}
	secret, err := e.cipher.Open(u.ID, *u.TOTPSecretEnc)
	if err != nil {
		return false, err
	}
	ok, err := e.totp.Validate(code, secret, e.now())
	if err != nil {
		return false, err
	}
	e.observe(ctx, "totp", ok)
	return ok, nil
}

func (e *Engine) checkRecovery(ctx context.Context, u *userdomain.User, code string) (bool, error) {
	ok, err := e.repo.ConsumeRecoveryCode(ctx, u.ID, HashRecoveryCode(code), e.now().UTC())
	if err != nil {
		return false, err
	}
	e.observe(ctx, "recovery", ok)
	if ok {
		e.audit(ctx, u.ID, "recovery_code_used", "")
	}
	return ok, nil
}

func (e *Engine) observe(ctx context.Context, method string, ok bool) {
	if e.observer != nil {
		e.observer.TwoFactorVerified(ctx, method, ok)
	}
}

func (e *Engine) audit(ctx context.Context, userID int64, action, metadata string) {
	if e.auditor != nil {
		e.auditor.LogEvent(ctx, userID, action, "two_factor", metadata)
	}
}
