package handler

import (
	"net/http"
	"time"

	"transcendence/backend/internal/identity/service"
	"transcendence/backend/internal/server/interceptors"
)

// SessionTokenCookie carries the refresh token. It is only sent to the
// session-management routes.
const SessionTokenCookie = "session_token"

const (
	sessionCookiePath = "/api/auth/session-management/"
	accessCookiePath  = "/api/"
)

func setAuthCookies(w http.ResponseWriter, issued *service.Issued, accessTTL time.Duration) {
	http.SetCookie(w, authCookie(SessionTokenCookie, issued.SessionToken.String(), sessionCookiePath, interceptors.LongCookieMaxAge))
	http.SetCookie(w, authCookie(interceptors.AccessTokenCookie, issued.AccessToken, accessCookiePath, accessTTL))
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []*http.Cookie{
		authCookie(SessionTokenCookie, "", sessionCookiePath, 0),
		authCookie(interceptors.AccessTokenCookie, "", accessCookiePath, 0),
	} {
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func authCookie(name, value, path string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
