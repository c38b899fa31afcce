// Package telemetry holds the auth counters exported through OpenTelemetry.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "transcendence/backend/auth"

// AuthMetrics counts authentication outcomes. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	logins    metric.Int64Counter
	rotations metric.Int64Counter
	pruned    metric.Int64Counter
	twoFactor metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on mp.
func NewAuthMetrics(mp metric.MeterProvider) (*AuthMetrics, error) {
	m := mp.Meter(meterName)
	logins, err := m.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by outcome."))
	if err != nil {
		return nil, err
	}
	rotations, err := m.Int64Counter("auth.session.rotations",
		metric.WithDescription("Session token rotations by kind and outcome."))
	if err != nil {
		return nil, err
	}
	pruned, err := m.Int64Counter("auth.sessions.pruned",
		metric.WithDescription("Sessions deleted by the per-user cap."))
	if err != nil {
		return nil, err
	}
	twoFactor, err := m.Int64Counter("auth.twofactor.verifications",
		metric.WithDescription("Second factor checks by method and result."))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{logins: logins, rotations: rotations, pruned: pruned, twoFactor: twoFactor}, nil
}

// LoginAttempted records a login with outcome such as "success", "invalid_credentials" or "two_factor_required".
func (m *AuthMetrics) LoginAttempted(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionRotated records a rotation of kind "create", "refresh" or "reauth".
func (m *AuthMetrics) SessionRotated(ctx context.Context, kind string, ok bool) {
	if m == nil {
		return
	}
	m.rotations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("ok", ok),
	))
}

// SessionsPruned implements session.PruneObserver.
func (m *AuthMetrics) SessionsPruned(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(ctx, n)
}

// TwoFactorVerified implements mfa.Observer.
func (m *AuthMetrics) TwoFactorVerified(ctx context.Context, method string, ok bool) {
	if m == nil {
		return
	}
	m.twoFactor.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("ok", ok),
	))
}
