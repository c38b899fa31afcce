package otel

import (
	"context"
	"strconv"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"transcendence/backend/internal/audit/domain"
)

// recordEmitter is the subset of otellog.Logger the audit sink needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditSink forwards audit events as OTel log records. It implements audit.Sink.
type AuditSink struct {
	logger recordEmitter
}

// NewAuditSink returns a sink that emits through provider. A nil provider yields a sink that drops events.
func NewAuditSink(provider *sdklog.LoggerProvider) *AuditSink {
	if provider == nil {
		return &AuditSink{}
	}
	return &AuditSink{logger: provider.Logger("transcendence.audit")}
}

func newAuditSinkWithLogger(l recordEmitter) *AuditSink {
	return &AuditSink{logger: l}
}

// Emit converts entry to a log record: the action is the body, the rest are attributes.
func (s *AuditSink) Emit(ctx context.Context, entry *domain.AuditLog) {
	if s.logger == nil || entry == nil {
		return
	}
	rec := otellog.Record{}
	rec.SetTimestamp(entry.CreatedAt)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName("audit." + entry.Action)
	rec.SetBody(otellog.StringValue(entry.Action))
	rec.AddAttributes(
		otellog.String("audit.id", entry.ID),
		otellog.String("audit.resource", entry.Resource),
		otellog.String("client.address", entry.IP),
	)
	if entry.UserID != 0 {
		rec.AddAttributes(otellog.String("user.id", strconv.FormatInt(entry.UserID, 10)))
	}
	if entry.Metadata != "" {
		rec.AddAttributes(otellog.String("audit.metadata", entry.Metadata))
	}
	s.logger.Emit(ctx, rec)
}
