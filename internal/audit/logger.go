package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"transcendence/backend/internal/audit/domain"
	auditrepo "transcendence/backend/internal/audit/repository"
)

// Security event actions recorded by the auth flows.
const (
	ActionRegister        = "register"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionReauth          = "reauth"
	ActionRefresh         = "refresh"
	ActionSessionMismatch = "session_mismatch"
	ActionLogout          = "logout"
	ActionSessionsRevoked = "sessions_revoked"
	ActionSessionsDeleted = "sessions_deleted"
	ActionPasswordChanged = "password_changed"
)

// Audited resources.
const (
	ResourceSession = "session"
	ResourceUser    = "user"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Sink receives every audit event after it is built, e.g. to forward it as an OTel log record.
type Sink interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// AuditLogger writes a single audit event with explicit action/resource. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID int64, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	sinks       []Sink
	logger      *slog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". repo may be nil when only sinks are wanted.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, sinks: sinks, logger: logger}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID int64, action, resource, metadata string) {
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	for _, s := range l.sinks {
		s.Emit(ctx, entry)
	}
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "audit: failed to log event",
			"action", action, "resource", resource, "error", err)
	}
}
