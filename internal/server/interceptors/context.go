package interceptors

import (
	"context"

	"transcendence/backend/internal/identity/service"
	sessiondomain "transcendence/backend/internal/session/domain"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientKey   = contextKey{"client"}
)

// WithIdentity returns a context carrying the authenticated caller.
// Handlers read it via GetIdentity, GetUserID and GetSessionID.
func WithIdentity(ctx context.Context, id *service.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the authenticated caller and true if set; otherwise nil, false.
func GetIdentity(ctx context.Context) (*service.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*service.Identity)
	return id, ok && id != nil
}

// GetUserID returns the caller's user id and true if set; otherwise 0, false.
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}

// GetSessionID returns the caller's session id and true if set; otherwise 0, false.
func GetSessionID(ctx context.Context) (int64, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return 0, false
	}
	return id.SessionID, true
}

// WithClient returns a context carrying the requesting device.
func WithClient(ctx context.Context, c sessiondomain.Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// GetClient returns the requesting device, or the zero Client outside ClientInfo.
func GetClient(ctx context.Context) sessiondomain.Client {
	c, _ := ctx.Value(clientKey).(sessiondomain.Client)
	return c
}

// ClientIP returns the client IP resolved by ClientInfo, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip := GetClient(ctx).IPAddress; ip != "" {
		return ip
	}
	return "unknown"
}
