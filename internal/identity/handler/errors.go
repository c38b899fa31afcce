package handler

import (
	"errors"
	"net/http"

	"transcendence/backend/internal/identity/service"
	"transcendence/backend/internal/mfa"
	"transcendence/backend/internal/security"
	userdomain "transcendence/backend/internal/user/domain"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{security.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrMissingAccessToken, http.StatusUnauthorized, "missing_access_token"},
	{service.ErrInvalidAccessToken, http.StatusUnauthorized, "invalid_access_token"},
	{service.ErrMissingSessionToken, http.StatusUnauthorized, "missing_session_token"},
	{service.ErrInvalidSessionToken, http.StatusUnauthorized, "invalid_session_token"},
	{service.ErrSessionNotFound, http.StatusUnauthorized, "session_not_found"},
	{service.ErrSessionMismatch, http.StatusUnauthorized, "session_mismatch"},
	{service.ErrNeedReauth, http.StatusUnauthorized, "reauth_required"},
	{service.ErrDidLogout, http.StatusUnauthorized, "logged_out"},
	{mfa.ErrTwoFactorRequired, http.StatusUnauthorized, "two_factor_required"},
	{mfa.ErrTwoFactorInvalid, http.StatusUnauthorized, "two_factor_invalid"},
	{mfa.ErrAlreadyEnabled, http.StatusConflict, "two_factor_already_enabled"},
	{mfa.ErrNotEnabled, http.StatusConflict, "two_factor_not_enabled"},
	{mfa.ErrNotStarted, http.StatusConflict, "two_factor_not_started"},
	{mfa.ErrConcurrentRequestRaced, http.StatusConflict, "concurrent_request"},
	{mfa.ErrNotConfigured, http.StatusServiceUnavailable, "two_factor_unavailable"},
	{userdomain.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{userdomain.ErrNicknameTaken, http.StatusConflict, "nickname_taken"},
}

// WriteError renders err as a JSON error. Known sentinels keep their message;
// anything else is logged and rendered as an opaque 500. ErrDidLogout also
// clears the auth cookies.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "validation_error", Message: verr.Message, Field: verr.Field})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.err == service.ErrDidLogout {
				clearAuthCookies(w)
			}
			writeJSON(w, m.status, errorResponse{Code: m.code, Message: m.err.Error()})
			return
		}
	}
	h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: "internal server error"})
}
