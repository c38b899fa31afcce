package interceptors

import (
	"context"
	"net/http"

	"transcendence/backend/internal/identity/service"
)

// AccessTokenCookie carries the short-lived access JWT.
const AccessTokenCookie = "access_token"

// AccessAuthenticator validates an access token against the live session row.
type AccessAuthenticator interface {
	AuthenticateAccess(ctx context.Context, token string) (*service.Identity, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireLogin returns middleware that authenticates the access_token cookie
// and stores the caller in the request context. Failures are passed to
// onError and the wrapped handler is not called.
func RequireLogin(auth AccessAuthenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(AccessTokenCookie); err == nil {
				token = c.Value
			}
			id, err := auth.AuthenticateAccess(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
