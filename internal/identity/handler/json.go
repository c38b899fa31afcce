package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"transcendence/backend/internal/identity/service"
	userdomain "transcendence/backend/internal/user/domain"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type passwordRequest struct {
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type changePasswordRequest struct {
	Password          string `json:"password"`
	MFACode           string `json:"mfa_code"`
	NewPassword       string `json:"new_password"`
	KeepOtherSessions bool   `json:"keep_other_sessions_logged_in"`
}

type sessionsRequest struct {
	Password   string  `json:"password"`
	MFACode    string  `json:"mfa_code"`
	SessionIDs []int64 `json:"session_ids"`
}

type twoFactorCodeRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

type userJSON struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Nickname    string    `json:"nickname"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionJSON struct {
	SessionID     int64     `json:"session_id"`
	UserID        int64     `json:"user_id"`
	DeviceName    string    `json:"device_name,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	JWTValidUntil time.Time `json:"jwt_valid_until"`
	LoggedInUntil time.Time `json:"logged_in_until"`
}

type currentSessionJSON struct {
	sessionJSON
	RefreshableUntil time.Time `json:"refreshable_until"`
}

type sessionViewJSON struct {
	ID                  int64     `json:"id"`
	DeviceName          string    `json:"device_name,omitempty"`
	IPAddress           string    `json:"ip_address,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	RefreshedAt         time.Time `json:"refreshed_at"`
	LastUsedAt          time.Time `json:"last_used_at"`
	LastAuthenticatedAt time.Time `json:"last_authenticated_at"`
	LoggedInUntil       time.Time `json:"logged_in_until"`
	Active              bool      `json:"active"`
	Current             bool      `json:"current"`
}

type authResponse struct {
	User    userJSON    `json:"user"`
	Session sessionJSON `json:"session"`
}

type sessionListResponse struct {
	Sessions []sessionViewJSON `json:"sessions"`
}

type loggedOutResponse struct {
	LoggedOut int64 `json:"logged_out"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func toUserJSON(u *userdomain.User) userJSON {
	return userJSON{
		ID:          u.ID,
		Email:       u.Email,
		Nickname:    u.Nickname,
		TOTPEnabled: u.TOTPEnabled,
		CreatedAt:   u.CreatedAt,
	}
}

func toSessionViewJSON(v service.SessionView) sessionViewJSON {
	return sessionViewJSON{
		ID:                  v.ID,
		DeviceName:          v.DeviceName,
		IPAddress:           v.IPAddress,
		CreatedAt:           v.CreatedAt,
		RefreshedAt:         v.RefreshedAt,
		LastUsedAt:          v.LastUsedAt,
		LastAuthenticatedAt: v.LastAuthenticatedAt,
		LoggedInUntil:       v.LoggedInUntil,
		Active:              v.Active,
		Current:             v.Current,
	}
}

// decode reads a JSON body into dst. On failure it writes a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: msg})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
