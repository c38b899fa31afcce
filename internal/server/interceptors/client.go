package interceptors

import (
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mssola/useragent"
	"github.com/oklog/ulid/v2"

	sessiondomain "transcendence/backend/internal/session/domain"
)

// DeviceIDCookie carries the non-secret device identifier used to reuse a
// session row when the same browser logs in again.
const DeviceIDCookie = "device_id"

// LongCookieMaxAge is the longest max-age browsers honor.
const LongCookieMaxAge = 400 * 24 * time.Hour

const maxDeviceNameLen = 256

// ClientInfo resolves the requesting device (device id cookie, client IP and
// user agent) and stores it in the request context. A missing or malformed
// device id cookie is replaced with a fresh ULID.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := ""
		if c, err := r.Cookie(DeviceIDCookie); err == nil {
			if _, err := ulid.ParseStrict(c.Value); err == nil {
				deviceID = c.Value
			}
		}
		if deviceID == "" {
			deviceID = ulid.Make().String()
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceIDCookie,
				Value:    deviceID,
				Path:     "/",
				MaxAge:   int(LongCookieMaxAge / time.Second),
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := WithClient(r.Context(), sessiondomain.Client{
			DeviceID:   deviceID,
			DeviceName: deviceName(r.UserAgent()),
			IPAddress:  requestIP(r),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIP returns the first X-Forwarded-For hop, else X-Real-IP, else the peer address.
func requestIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		if s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// deviceName summarizes a User-Agent as "{browser} on {os} ({category})".
// An empty User-Agent yields an empty name.
func deviceName(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	category := "pc"
	switch {
	case parsed.Bot():
		category = "crawler"
	case parsed.Mobile():
		category = "smartphone"
	case parsed.OS() == "":
		category = unknownPart
	}
	return truncate(orUnknown(name)+" on "+orUnknown(parsed.OS())+" ("+category+")", maxDeviceNameLen)
}

const unknownPart = "UNKNOWN"

func orUnknown(s string) string {
	if s == "" {
		return unknownPart
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
