package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcendence/backend/internal/identity/service"
	"transcendence/backend/internal/mfa"
	"transcendence/backend/internal/security"
	"transcendence/backend/internal/server/interceptors"
	sessiondomain "transcendence/backend/internal/session/domain"
	userdomain "transcendence/backend/internal/user/domain"
)

const (
	testAccessToken = "access-ok"
	testAccessTTL   = 15 * time.Minute
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stubAuth returns canned results; err fields force failures per operation.
type stubAuth struct {
	user       *userdomain.User
	identity   *service.Identity
	issueErr   error
	meErr      error
	sessionErr error
	logoutErr  error

	lastClient  sessiondomain.Client
	lastToken   string
	lastIDs     []int64
	lastPwInput service.ChangePasswordInput
	loggedOut   bool
}

func newStubAuth() *stubAuth {
	return &stubAuth{
		user:     &userdomain.User{ID: 7, Email: "a@example.com", Nickname: "alice", CreatedAt: testNow},
		identity: &service.Identity{UserID: 7, SessionID: 3, AccessExpiresAt: testNow.Add(testAccessTTL)},
	}
}

func (s *stubAuth) issued(client sessiondomain.Client) (*service.Issued, error) {
	s.lastClient = client
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	tok, err := security.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	return &service.Issued{
		SessionToken:    tok,
		AccessToken:     "jwt-" + client.DeviceID,
		AccessExpiresAt: testNow.Add(testAccessTTL),
		UserID:          s.user.ID,
		User:            s.user,
		Session: &sessiondomain.Session{
			ID: 3, UserID: s.user.ID, DeviceID: client.DeviceID, DeviceName: client.DeviceName,
			CreatedAt: testNow, RefreshedAt: testNow, LastUsedAt: testNow, LastAuthenticatedAt: testNow,
		},
	}, nil
}

func (s *stubAuth) Policy() sessiondomain.ReauthPolicy { return sessiondomain.DefaultReauthPolicy() }

func (s *stubAuth) Register(_ context.Context, _ service.RegisterInput, c sessiondomain.Client) (*service.Issued, error) {
	return s.issued(c)
}

func (s *stubAuth) Login(_ context.Context, _ service.LoginInput, c sessiondomain.Client) (*service.Issued, error) {
	return s.issued(c)
}

func (s *stubAuth) Reauth(_ context.Context, raw, _, _ string, c sessiondomain.Client) (*service.Issued, error) {
	s.lastToken = raw
	return s.issued(c)
}

func (s *stubAuth) Refresh(_ context.Context, raw string, c sessiondomain.Client) (*service.Issued, error) {
	s.lastToken = raw
	if raw == "" {
		return nil, service.ErrMissingSessionToken
	}
	return s.issued(c)
}

func (s *stubAuth) AuthenticateAccess(_ context.Context, token string) (*service.Identity, error) {
	if token == "" {
		return nil, service.ErrMissingAccessToken
	}
	if token != testAccessToken {
		return nil, service.ErrInvalidAccessToken
	}
	return s.identity, nil
}

func (s *stubAuth) Logout(context.Context, *service.Identity) error {
	s.loggedOut = true
	return s.logoutErr
}

func (s *stubAuth) Me(context.Context, *service.Identity) (*userdomain.User, error) {
	if s.meErr != nil {
		return nil, s.meErr
	}
	return s.user, nil
}

func (s *stubAuth) CurrentSession(_ context.Context, id *service.Identity) (*service.SessionInfo, error) {
	sess := &sessiondomain.Session{ID: id.SessionID, UserID: id.UserID, CreatedAt: testNow, RefreshedAt: testNow, LastAuthenticatedAt: testNow}
	p := s.Policy()
	return &service.SessionInfo{
		Session:          sess,
		JWTValidUntil:    id.AccessExpiresAt,
		LoggedInUntil:    p.LoggedInUntil(sess),
		RefreshableUntil: p.RefreshableUntil(sess),
	}, nil
}

func (s *stubAuth) ChangePassword(_ context.Context, _ *service.Identity, in service.ChangePasswordInput) error {
	s.lastPwInput = in
	return s.sessionErr
}

func (s *stubAuth) ListSessions(_ context.Context, id *service.Identity, _, _ string) ([]service.SessionView, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	return []service.SessionView{
		{ID: id.SessionID, Active: true, Current: true},
		{ID: 99, Active: false},
	}, nil
}

func (s *stubAuth) LogoutOtherSessions(context.Context, *service.Identity, string, string) (int64, error) {
	return 4, s.sessionErr
}

func (s *stubAuth) LogoutSessions(_ context.Context, id *service.Identity, _, _ string, ids []int64) error {
	s.lastIDs = ids
	for _, v := range ids {
		if v == id.SessionID {
			return service.ErrDidLogout
		}
	}
	return s.sessionErr
}

func (s *stubAuth) DeleteSessions(ctx context.Context, id *service.Identity, pw, code string, ids []int64) error {
	return s.LogoutSessions(ctx, id, pw, code, ids)
}

type stubTwoFactor struct {
	err error
}

func (s *stubTwoFactor) Start(context.Context, int64, string) (*mfa.Enrollment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &mfa.Enrollment{Secret: "JBSWY3DPEHPK3PXP", OTPAuthURL: "otpauth://totp/x"}, nil
}

func (s *stubTwoFactor) Confirm(context.Context, int64, string, string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"aaaa-bbbb", "cccc-dddd"}, nil
}

func (s *stubTwoFactor) Disable(context.Context, int64, string, string) error { return s.err }

func newTestRouter(auth *stubAuth, tf *stubTwoFactor) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(interceptors.ClientInfo)
	NewHandler(auth, tf, testAccessTTL, nil).Routes(api)
	return r
}

func do(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func accessCookie() *http.Cookie {
	return &http.Cookie{Name: interceptors.AccessTokenCookie, Value: testAccessToken}
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestRegister_SetsCookies(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/register", `{"email":"a@example.com","password":"password123","nickname":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cookies := responseCookies(rec)
	sess := cookies[SessionTokenCookie]
	require.NotNil(t, sess)
	assert.Equal(t, "/api/auth/session-management/", sess.Path)
	assert.Equal(t, 400*24*60*60, sess.MaxAge)
	assert.True(t, sess.HttpOnly)
	assert.True(t, sess.Secure)
	assert.Equal(t, http.SameSiteLaxMode, sess.SameSite)
	_, err := security.DecodeSessionToken(sess.Value)
	assert.NoError(t, err, "session cookie should carry an encoded session token")

	access := cookies[interceptors.AccessTokenCookie]
	require.NotNil(t, access)
	assert.Equal(t, "/api/", access.Path)
	assert.Equal(t, int(testAccessTTL/time.Second), access.MaxAge)

	device := cookies[interceptors.DeviceIDCookie]
	require.NotNil(t, device, "first contact should set a device id")
	assert.Equal(t, device.Value, auth.lastClient.DeviceID)
	assert.Equal(t, "jwt-"+device.Value, access.Value)

	var body authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.User.ID)
	assert.Equal(t, "alice", body.User.Nickname)
	assert.Equal(t, int64(3), body.Session.SessionID)
	assert.True(t, body.Session.JWTValidUntil.Equal(testNow.Add(testAccessTTL)))
	assert.True(t, body.Session.LoggedInUntil.Equal(testNow.Add(30*24*time.Hour)))
}

func TestLogin_RendersIssuedUserWithoutReload(t *testing.T) {
	auth := newStubAuth()
	auth.meErr = errors.New("replica lag")
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := responseCookies(rec)
	assert.NotNil(t, cookies[SessionTokenCookie])
	assert.NotNil(t, cookies[interceptors.AccessTokenCookie])
	var body authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.User.Nickname)
}

func TestAuthRoutes_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &service.ValidationError{Field: "nickname", Message: "invalid"}, http.StatusBadRequest, "validation_error"},
		{"email taken", userdomain.ErrEmailTaken, http.StatusConflict, "email_taken"},
		{"nickname taken", userdomain.ErrNicknameTaken, http.StatusConflict, "nickname_taken"},
		{"bad credentials", security.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"2fa required", mfa.ErrTwoFactorRequired, http.StatusUnauthorized, "two_factor_required"},
		{"2fa invalid", mfa.ErrTwoFactorInvalid, http.StatusUnauthorized, "two_factor_invalid"},
		{"wrapped", errors.Join(errors.New("ctx"), service.ErrSessionMismatch), http.StatusUnauthorized, "session_mismatch"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newStubAuth()
			auth.issueErr = tt.err
			r := newTestRouter(auth, &stubTwoFactor{})

			rec := do(r, http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"x"}`)
			assert.Equal(t, tt.status, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.code, e.Code)
			if tt.code == "internal_error" {
				assert.NotContains(t, e.Message, "connection reset")
			}
			_, hasSession := responseCookies(rec)[SessionTokenCookie]
			assert.False(t, hasSession, "failed auth must not set a session cookie")
		})
	}
}

func TestValidationError_CarriesField(t *testing.T) {
	auth := newStubAuth()
	auth.issueErr = &service.ValidationError{Field: "password", Message: "must be at least 8 characters"}
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/register", `{"email":"a@example.com","password":"x","nickname":"al"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "password", e.Field)
}

func TestMalformedBody(t *testing.T) {
	r := newTestRouter(newStubAuth(), &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Code)

	rec = do(r, http.MethodPost, "/api/auth/login", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/session-management/refresh-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_session_token", decodeError(t, rec).Code)

	rec = do(r, http.MethodPost, "/api/auth/session-management/refresh-jwt", "",
		&http.Cookie{Name: SessionTokenCookie, Value: "tok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", auth.lastToken)
	assert.NotNil(t, responseCookies(rec)[SessionTokenCookie])

	var body sessionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.SessionID)
}

func TestRefresh_ReauthRequired(t *testing.T) {
	auth := newStubAuth()
	auth.issueErr = service.ErrNeedReauth
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/session-management/refresh-jwt", "",
		&http.Cookie{Name: SessionTokenCookie, Value: "tok"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "reauth_required", decodeError(t, rec).Code)
}

func TestReauth_UsesSessionCookie(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/auth/session-management/reauth", `{"password":"password123"}`,
		&http.Cookie{Name: SessionTokenCookie, Value: "tok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", auth.lastToken)
}

func TestUserRoutes_RequireLogin(t *testing.T) {
	r := newTestRouter(newStubAuth(), &stubTwoFactor{})

	rec := do(r, http.MethodGet, "/api/user/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_access_token", decodeError(t, rec).Code)

	rec = do(r, http.MethodGet, "/api/user/me", "", &http.Cookie{Name: interceptors.AccessTokenCookie, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_access_token", decodeError(t, rec).Code)

	rec = do(r, http.MethodGet, "/api/user/me", "", accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var u userJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "a@example.com", u.Email)
}

func TestCurrentSession(t *testing.T) {
	r := newTestRouter(newStubAuth(), &stubTwoFactor{})

	rec := do(r, http.MethodGet, "/api/user/session", "", accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var body currentSessionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.SessionID)
	assert.True(t, body.JWTValidUntil.Equal(testNow.Add(testAccessTTL)))
	assert.True(t, body.LoggedInUntil.Equal(testNow.Add(30*24*time.Hour)))
	assert.True(t, body.RefreshableUntil.Equal(testNow.Add(7*24*time.Hour)))
}

func TestLogout_ClearsCookies(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/user/logout", "", accessCookie())
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, auth.loggedOut)

	cookies := responseCookies(rec)
	for _, name := range []string{SessionTokenCookie, interceptors.AccessTokenCookie} {
		c := cookies[name]
		require.NotNil(t, c, name)
		assert.Less(t, c.MaxAge, 0, name)
		assert.Empty(t, c.Value, name)
	}
	assert.Equal(t, "/api/auth/session-management/", cookies[SessionTokenCookie].Path)
}

func TestLogoutSessions(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/user/logout-sessions", `{"password":"pw","session_ids":[10,11]}`, accessCookie())
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{10, 11}, auth.lastIDs)
	assert.Empty(t, responseCookies(rec)[SessionTokenCookie])

	rec = do(r, http.MethodPost, "/api/user/logout-sessions", `{"password":"pw","session_ids":[3]}`, accessCookie())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "logged_out", decodeError(t, rec).Code)
	c := responseCookies(rec)[SessionTokenCookie]
	require.NotNil(t, c, "logging out the current session clears cookies")
	assert.Less(t, c.MaxAge, 0)
}

func TestSessions_ListAndDelete(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/user/sessions", `{"password":"pw"}`, accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var list sessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	assert.True(t, list.Sessions[0].Current)
	assert.False(t, list.Sessions[1].Active)

	rec = do(r, http.MethodDelete, "/api/user/sessions", `{"password":"pw","session_ids":[99]}`, accessCookie())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{99}, auth.lastIDs)

	auth.sessionErr = security.ErrInvalidCredentials
	rec = do(r, http.MethodPost, "/api/user/sessions", `{"password":"wrong"}`, accessCookie())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutOtherSessions(t *testing.T) {
	r := newTestRouter(newStubAuth(), &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/user/logout-other-sessions", `{"password":"pw","mfa_code":"123456"}`, accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var body loggedOutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.LoggedOut)
}

func TestChangePassword(t *testing.T) {
	auth := newStubAuth()
	r := newTestRouter(auth, &stubTwoFactor{})

	rec := do(r, http.MethodPost, "/api/user/change-password",
		`{"password":"old-password","new_password":"new-password","keep_other_sessions_logged_in":true}`, accessCookie())
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "new-password", auth.lastPwInput.NewPassword)
	assert.True(t, auth.lastPwInput.KeepOtherSessions)
}

func TestTwoFactorRoutes(t *testing.T) {
	tf := &stubTwoFactor{}
	r := newTestRouter(newStubAuth(), tf)

	rec := do(r, http.MethodPost, "/api/user/2fa/start", `{"password":"pw"}`, accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var enrollment mfa.Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrollment))
	assert.Equal(t, "JBSWY3DPEHPK3PXP", enrollment.Secret)

	rec = do(r, http.MethodPost, "/api/user/2fa/confirm", `{"password":"pw","code":"123456"}`, accessCookie())
	require.Equal(t, http.StatusOK, rec.Code)
	var codes recoveryCodesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codes))
	assert.Len(t, codes.RecoveryCodes, 2)

	rec = do(r, http.MethodPost, "/api/user/2fa/disable", `{"password":"pw","code":"123456"}`, accessCookie())
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTwoFactorRoutes_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{mfa.ErrAlreadyEnabled, http.StatusConflict, "two_factor_already_enabled"},
		{mfa.ErrNotEnabled, http.StatusConflict, "two_factor_not_enabled"},
		{mfa.ErrNotStarted, http.StatusConflict, "two_factor_not_started"},
		{mfa.ErrConcurrentRequestRaced, http.StatusConflict, "concurrent_request"},
		{mfa.ErrNotConfigured, http.StatusServiceUnavailable, "two_factor_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			r := newTestRouter(newStubAuth(), &stubTwoFactor{err: tt.err})
			rec := do(r, http.MethodPost, "/api/user/2fa/confirm", `{"password":"pw","code":"1"}`, accessCookie())
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(newStubAuth(), &stubTwoFactor{})
	rec := do(r, http.MethodGet, "/api/auth/login", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
