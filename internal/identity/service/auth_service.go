package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transcendence/backend/internal/audit"
	"transcendence/backend/internal/mfa"
	"transcendence/backend/internal/security"
	"transcendence/backend/internal/session"
	sessiondomain "transcendence/backend/internal/session/domain"
	sessionrepo "transcendence/backend/internal/session/repository"
	userdomain "transcendence/backend/internal/user/domain"
)

var tracer = otel.Tracer("transcendence/backend/identity")

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) (*userdomain.User, error)
	ChangePassword(ctx context.Context, userID int64, hash string, deauthExcept *int64) error
}

// Credentials verifies passwords. Unknown accounts and wrong passwords both
// yield security.ErrInvalidCredentials.
type Credentials interface {
	ByEmail(ctx context.Context, email, password string) (*userdomain.User, error)
	ByUserID(ctx context.Context, userID int64, password string) (*userdomain.User, error)
	HashPassword(password string) (string, error)
}

// SecondFactor checks a 2FA code for users that have it enabled.
type SecondFactor interface {
	RequireIfEnabled(ctx context.Context, u *userdomain.User, code string) error
}

// Observer counts login and rotation outcomes.
type Observer interface {
	LoginAttempted(ctx context.Context, outcome string)
	SessionRotated(ctx context.Context, kind string, ok bool)
}

// Config holds the optional collaborators of AuthService.
type Config struct {
	Policy   sessiondomain.ReauthPolicy
	Pruner   *session.Pruner
	Auditor  audit.AuditLogger
	Observer Observer
	Logger   *slog.Logger
}

// Issued is the outcome of a session creation or rotation: the new refresh
// token (sent once, never stored) and an access token bound to it.
type Issued struct {
	SessionToken    security.SessionToken
	AccessToken     string
	AccessExpiresAt time.Time
	Session         *sessiondomain.Session
	UserID          int64
	// User is the account as loaded by the operation. Refresh leaves it nil.
	User *userdomain.User
}

// Identity is the authenticated caller derived from a valid access token.
type Identity struct {
	UserID          int64
	SessionID       int64
	DeviceID        string
	AccessExpiresAt time.Time
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Email    string
	Password string
	Nickname string
}

// LoginInput is the payload of Login.
type LoginInput struct {
	Email    string
	Password string
	MFACode  string
}

// ChangePasswordInput is the payload of ChangePassword.
type ChangePasswordInput struct {
	Password          string
	MFACode           string
	NewPassword       string
	KeepOtherSessions bool
}

// SessionView describes one of the caller's sessions.
type SessionView struct {
	ID                  int64
	DeviceID            string
	DeviceName          string
	IPAddress           string
	CreatedAt           time.Time
	RefreshedAt         time.Time
	LastUsedAt          time.Time
	LastAuthenticatedAt time.Time
	LoggedInUntil       time.Time
	Active              bool
	Current             bool
}

// SessionInfo describes the caller's current session and its deadlines.
type SessionInfo struct {
	Session          *sessiondomain.Session
	JWTValidUntil    time.Time
	LoggedInUntil    time.Time
	RefreshableUntil time.Time
}

// AuthService runs the session lifecycle: create, refresh-rotate,
// reauth-rotate and invalidate, plus the account operations built on it.
// All cross-request ordering comes from the compare-and-swap in
// sessionrepo.Repository.Rotate; the service holds no locks.
type AuthService struct {
	users    UserRepo
	sessions sessionrepo.Repository
	creds    Credentials
	mfa      SecondFactor
	tokens   *security.TokenProvider
	policy   sessiondomain.ReauthPolicy
	pruner   *session.Pruner
	auditor  audit.AuditLogger
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	sessions sessionrepo.Repository,
	creds Credentials,
	secondFactor SecondFactor,
	tokens *security.TokenProvider,
	cfg Config,
) *AuthService {
	policy := cfg.Policy
	if policy.RollingWindow <= 0 || policy.ForcedWindow <= 0 {
		policy = sessiondomain.DefaultReauthPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		creds:    creds,
		mfa:      secondFactor,
		tokens:   tokens,
		policy:   policy,
		pruner:   cfg.Pruner,
		auditor:  cfg.Auditor,
		observer: cfg.Observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the reauth policy in force.
func (s *AuthService) Policy() sessiondomain.ReauthPolicy {
	return s.policy
}

// Register creates the account and its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, client sessiondomain.Client) (_ *Issued, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	nickname := strings.TrimSpace(in.Nickname)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}
	if err := validateNickname(nickname); err != nil {
		return nil, err
	}
	hash, err := s.creds.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, &userdomain.User{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	issued, err := s.createSession(ctx, u.ID, client)
	if err != nil {
		return nil, err
	}
	issued.User = u
	s.audit(ctx, u.ID, audit.ActionRegister, audit.ResourceUser, "")
	return issued, nil
}

// Login verifies credentials (and the second factor when enabled). An existing
// session for the same device is reauth-rotated; otherwise a new one is created.
// Losing the rotation race yields ErrSessionMismatch and no tokens.
func (s *AuthService) Login(ctx context.Context, in LoginInput, client sessiondomain.Client) (_ *Issued, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { endSpan(span, err) }()

	u, err := s.creds.ByEmail(ctx, NormalizeEmail(in.Email), in.Password)
	if err != nil {
		if errors.Is(err, security.ErrInvalidCredentials) {
			s.loginAttempted(ctx, "invalid_credentials")
			s.audit(ctx, 0, audit.ActionLoginFailure, audit.ResourceSession, "reason=credentials")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	if err := s.mfa.RequireIfEnabled(ctx, u, in.MFACode); err != nil {
		switch {
		case errors.Is(err, mfa.ErrTwoFactorRequired):
			s.loginAttempted(ctx, "two_factor_required")
		case errors.Is(err, mfa.ErrTwoFactorInvalid):
			s.loginAttempted(ctx, "two_factor_invalid")
			s.audit(ctx, u.ID, audit.ActionLoginFailure, audit.ResourceSession, "reason=two_factor")
		}
		return nil, err
	}

	var issued *Issued
	existing, err := s.sessions.GetByUserAndDevice(ctx, u.ID, client.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("load device session: %w", err)
	}
	if existing != nil {
		issued, err = s.rotate(ctx, existing, client, true)
	} else {
		issued, err = s.createSession(ctx, u.ID, client)
	}
	if err != nil {
		return nil, err
	}
	issued.User = u
	s.loginAttempted(ctx, "success")
	s.audit(ctx, u.ID, audit.ActionLoginSuccess, audit.ResourceSession, fmt.Sprintf("session_id=%d", issued.Session.ID))
	return issued, nil
}

// Reauth re-verifies the password (and second factor) of the session's owner and
// reauth-rotates the session. It deliberately skips the reauth predicate: this
// is the path a session that requires reauth uses to recover.
func (s *AuthService) Reauth(ctx context.Context, rawToken, password, mfaCode string, client sessiondomain.Client) (_ *Issued, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Reauth")
	defer func() { endSpan(span, err) }()

	sess, err := s.sessionFromToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	u, err := s.creds.ByUserID(ctx, sess.UserID, password)
	if err != nil {
		return nil, err
	}
	if err := s.mfa.RequireIfEnabled(ctx, u, mfaCode); err != nil {
		return nil, err
	}
	issued, err := s.rotate(ctx, sess, client, true)
	if err != nil {
		return nil, err
	}
	issued.User = u
	s.audit(ctx, u.ID, audit.ActionReauth, audit.ResourceSession, fmt.Sprintf("session_id=%d", sess.ID))
	return issued, nil
}

// Refresh rotates the session named by rawToken without re-verifying
// credentials. It fails with ErrNeedReauth once the reauth policy expires the
// session and with ErrSessionMismatch when another request rotated it first.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, client sessiondomain.Client) (_ *Issued, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { endSpan(span, err) }()

	sess, err := s.sessionFromToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("session.id", sess.ID))
	if s.policy.RequiresReauth(sess, s.now()) {
		return nil, ErrNeedReauth
	}
	issued, err := s.rotate(ctx, sess, client, false)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, sess.UserID, audit.ActionRefresh, audit.ResourceSession, fmt.Sprintf("session_id=%d", sess.ID))
	return issued, nil
}

// AuthenticateAccess validates an access token and cross-checks it against the
// live session row: the owner must match sub and the current token hash must
// start with jti. A rotation therefore invalidates every earlier access token.
func (s *AuthService) AuthenticateAccess(ctx context.Context, token string) (_ *Identity, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.AuthenticateAccess")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return nil, ErrMissingAccessToken
	}
	claims, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	jti, err := claims.TruncatedHash()
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.UserID != claims.Subject || !sess.TokenHash.MatchesTruncated(jti) {
		return nil, ErrSessionMismatch
	}
	if s.policy.RequiresReauth(sess, s.now()) {
		return nil, ErrNeedReauth
	}
	return &Identity{
		UserID:          sess.UserID,
		SessionID:       sess.ID,
		DeviceID:        sess.DeviceID,
		AccessExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout invalidates the caller's session.
func (s *AuthService) Logout(ctx context.Context, id *Identity) error {
	if _, err := s.sessions.Deauthenticate(ctx, id.UserID, []int64{id.SessionID}); err != nil {
		return fmt.Errorf("deauthenticate session: %w", err)
	}
	s.audit(ctx, id.UserID, audit.ActionLogout, audit.ResourceSession, fmt.Sprintf("session_id=%d", id.SessionID))
	return nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, id *Identity) (*userdomain.User, error) {
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, ErrSessionNotFound
	}
	return u, nil
}

// CurrentSession returns the caller's session with its deadlines.
func (s *AuthService) CurrentSession(ctx context.Context, id *Identity) (*SessionInfo, error) {
	sess, err := s.sessions.GetByID(ctx, id.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != id.UserID {
		return nil, ErrSessionNotFound
	}
	return &SessionInfo{
		Session:          sess,
		JWTValidUntil:    id.AccessExpiresAt,
		LoggedInUntil:    s.policy.LoggedInUntil(sess),
		RefreshableUntil: s.policy.RefreshableUntil(sess),
	}, nil
}

// ChangePassword replaces the password after re-verifying the current one. Other
// sessions are logged out in the same transaction unless KeepOtherSessions is set.
func (s *AuthService) ChangePassword(ctx context.Context, id *Identity, in ChangePasswordInput) error {
	if err := validatePassword("new_password", in.NewPassword); err != nil {
		return err
	}
	if _, err := s.reverify(ctx, id, in.Password, in.MFACode); err != nil {
		return err
	}
	hash, err := s.creds.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	var deauthExcept *int64
	if !in.KeepOtherSessions {
		keep := id.SessionID
		deauthExcept = &keep
	}
	if err := s.users.ChangePassword(ctx, id.UserID, hash, deauthExcept); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.audit(ctx, id.UserID, audit.ActionPasswordChanged, audit.ResourceUser,
		fmt.Sprintf("kept_other_sessions=%t", in.KeepOtherSessions))
	return nil
}

// ListSessions returns all of the caller's sessions, most recently used first.
func (s *AuthService) ListSessions(ctx context.Context, id *Identity, password, mfaCode string) ([]SessionView, error) {
	if _, err := s.reverify(ctx, id, password, mfaCode); err != nil {
		return nil, err
	}
	rows, err := s.sessions.ListByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.now()
	out := make([]SessionView, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionView{
			ID:                  r.ID,
			DeviceID:            r.DeviceID,
			DeviceName:          r.DeviceName,
			IPAddress:           r.IPAddress,
			CreatedAt:           r.CreatedAt,
			RefreshedAt:         r.RefreshedAt,
			LastUsedAt:          r.LastUsedAt,
			LastAuthenticatedAt: r.LastAuthenticatedAt,
			LoggedInUntil:       s.policy.LoggedInUntil(r),
			Active:              !s.policy.RequiresReauth(r, now),
			Current:             r.ID == id.SessionID,
		})
	}
	return out, nil
}

// LogoutOtherSessions invalidates every session of the caller except the current one.
func (s *AuthService) LogoutOtherSessions(ctx context.Context, id *Identity, password, mfaCode string) (int64, error) {
	if _, err := s.reverify(ctx, id, password, mfaCode); err != nil {
		return 0, err
	}
	n, err := s.sessions.DeauthenticateOthers(ctx, id.UserID, id.SessionID)
	if err != nil {
		return 0, fmt.Errorf("deauthenticate sessions: %w", err)
	}
	s.audit(ctx, id.UserID, audit.ActionSessionsRevoked, audit.ResourceSession, fmt.Sprintf("count=%d", n))
	return n, nil
}

// LogoutSessions invalidates the given sessions of the caller. It returns
// ErrDidLogout when the current session was among them.
func (s *AuthService) LogoutSessions(ctx context.Context, id *Identity, password, mfaCode string, ids []int64) error {
	if _, err := s.reverify(ctx, id, password, mfaCode); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	n, err := s.sessions.Deauthenticate(ctx, id.UserID, ids)
	if err != nil {
		return fmt.Errorf("deauthenticate sessions: %w", err)
	}
	s.audit(ctx, id.UserID, audit.ActionSessionsRevoked, audit.ResourceSession, fmt.Sprintf("count=%d", n))
	if containsID(ids, id.SessionID) {
		return ErrDidLogout
	}
	return nil
}

// DeleteSessions removes the given session rows of the caller. It returns
// ErrDidLogout when the current session was among them.
func (s *AuthService) DeleteSessions(ctx context.Context, id *Identity, password, mfaCode string, ids []int64) error {
	if _, err := s.reverify(ctx, id, password, mfaCode); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	n, err := s.sessions.Delete(ctx, id.UserID, ids)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	s.audit(ctx, id.UserID, audit.ActionSessionsDeleted, audit.ResourceSession, fmt.Sprintf("count=%d", n))
	if containsID(ids, id.SessionID) {
		return ErrDidLogout
	}
	return nil
}

func (s *AuthService) reverify(ctx context.Context, id *Identity, password, mfaCode string) (*userdomain.User, error) {
	u, err := s.creds.ByUserID(ctx, id.UserID, password)
	if err != nil {
		return nil, err
	}
	if err := s.mfa.RequireIfEnabled(ctx, u, mfaCode); err != nil {
		return nil, err
	}
	return u, nil
}

// sessionFromToken decodes the refresh cookie value and loads its session.
// Decode failures collapse to ErrInvalidSessionToken.
func (s *AuthService) sessionFromToken(ctx context.Context, raw string) (*sessiondomain.Session, error) {
	if raw == "" {
		return nil, ErrMissingSessionToken
	}
	tok, err := security.DecodeSessionToken(raw)
	if err != nil {
		return nil, ErrInvalidSessionToken
	}
	sess, err := s.sessions.GetByTokenHash(ctx, tok.Hash())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *AuthService) createSession(ctx context.Context, userID int64, client sessiondomain.Client) (*Issued, error) {
	tok, err := security.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess, err := s.sessions.Create(ctx, &sessiondomain.Session{
		UserID:              userID,
		TokenHash:           tok.Hash(),
		DeviceID:            client.DeviceID,
		DeviceName:          client.DeviceName,
		IPAddress:           client.IPAddress,
		CreatedAt:           now,
		RefreshedAt:         now,
		LastUsedAt:          now,
		LastAuthenticatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.rotated(ctx, "create", true)
	if s.pruner != nil {
		s.pruner.Prune(ctx, userID, sess.ID)
	}
	return s.issue(sess, tok)
}

// rotate swaps sess's token hash for a fresh one, conditioned on the hash the
// caller loaded. Losing the race yields ErrSessionMismatch and no tokens.
func (s *AuthService) rotate(ctx context.Context, sess *sessiondomain.Session, client sessiondomain.Client, reauthenticated bool) (*Issued, error) {
	kind := "refresh"
	if reauthenticated {
		kind = "reauth"
	}
	tok, err := security.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	if client.DeviceID == "" {
		client.DeviceID = sess.DeviceID
	}
	updated, err := s.sessions.Rotate(ctx, sess.ID, sess.TokenHash, sessiondomain.Rotation{
		TokenHash:       tok.Hash(),
		Client:          client,
		At:              s.now().UTC(),
		Reauthenticated: reauthenticated,
	})
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if updated == nil {
		s.rotated(ctx, kind, false)
		s.audit(ctx, sess.UserID, audit.ActionSessionMismatch, audit.ResourceSession, fmt.Sprintf("session_id=%d", sess.ID))
		s.logger.WarnContext(ctx, "session rotation lost race", "session_id", sess.ID, "user_id", sess.UserID, "kind", kind)
		return nil, ErrSessionMismatch
	}
	s.rotated(ctx, kind, true)
	return s.issue(updated, tok)
}

func (s *AuthService) issue(sess *sessiondomain.Session, tok security.SessionToken) (*Issued, error) {
	access, exp, err := s.tokens.IssueAccess(sess.UserID, sess.ID, sess.TokenHash.Truncate())
	if err != nil {
		return nil, err
	}
	return &Issued{
		SessionToken:    tok,
		AccessToken:     access,
		AccessExpiresAt: exp,
		Session:         sess,
		UserID:          sess.UserID,
	}, nil
}

func (s *AuthService) audit(ctx context.Context, userID int64, action, resource, metadata string) {
	if s.auditor != nil {
		s.auditor.LogEvent(ctx, userID, action, resource, metadata)
	}
}

func (s *AuthService) loginAttempted(ctx context.Context, outcome string) {
	if s.observer != nil {
		s.observer.LoginAttempted(ctx, outcome)
	}
}

func (s *AuthService) rotated(ctx context.Context, kind string, ok bool) {
	if s.observer != nil {
		s.observer.SessionRotated(ctx, kind, ok)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
