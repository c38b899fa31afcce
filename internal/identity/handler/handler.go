package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"transcendence/backend/internal/identity/service"
	"transcendence/backend/internal/mfa"
	"transcendence/backend/internal/server/interceptors"
	sessiondomain "transcendence/backend/internal/session/domain"
	userdomain "transcendence/backend/internal/user/domain"
)

// Auth is the session lifecycle the handler exposes over HTTP.
type Auth interface {
	Policy() sessiondomain.ReauthPolicy
	Register(ctx context.Context, in service.RegisterInput, client sessiondomain.Client) (*service.Issued, error)
	Login(ctx context.Context, in service.LoginInput, client sessiondomain.Client) (*service.Issued, error)
	Reauth(ctx context.Context, rawToken, password, mfaCode string, client sessiondomain.Client) (*service.Issued, error)
	Refresh(ctx context.Context, rawToken string, client sessiondomain.Client) (*service.Issued, error)
	AuthenticateAccess(ctx context.Context, token string) (*service.Identity, error)
	Logout(ctx context.Context, id *service.Identity) error
	Me(ctx context.Context, id *service.Identity) (*userdomain.User, error)
	CurrentSession(ctx context.Context, id *service.Identity) (*service.SessionInfo, error)
	ChangePassword(ctx context.Context, id *service.Identity, in service.ChangePasswordInput) error
	ListSessions(ctx context.Context, id *service.Identity, password, mfaCode string) ([]service.SessionView, error)
	LogoutOtherSessions(ctx context.Context, id *service.Identity, password, mfaCode string) (int64, error)
	LogoutSessions(ctx context.Context, id *service.Identity, password, mfaCode string, ids []int64) error
	DeleteSessions(ctx context.Context, id *service.Identity, password, mfaCode string, ids []int64) error
}

// TwoFactor is the 2FA enrollment lifecycle.
type TwoFactor interface {
	Start(ctx context.Context, userID int64, password string) (*mfa.Enrollment, error)
	Confirm(ctx context.Context, userID int64, password, code string) ([]string, error)
	Disable(ctx context.Context, userID int64, password, code string) error
}

// Handler serves the /api/auth and /api/user routes.
type Handler struct {
	auth      Auth
	twoFactor TwoFactor
	accessTTL time.Duration
	logger    *slog.Logger
}

// NewHandler returns a Handler. accessTTL is the max-age of the access_token cookie.
func NewHandler(auth Auth, twoFactor TwoFactor, accessTTL time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, twoFactor: twoFactor, accessTTL: accessTTL, logger: logger}
}

// Routes mounts the account routes on api, the router serving /api. Everything
// under /api/user requires a valid access token.
func (h *Handler) Routes(api *mux.Router) {
	authR := api.PathPrefix("/auth").Subrouter()
	authR.HandleFunc("/register", h.register).Methods(http.MethodPost)
	authR.HandleFunc("/login", h.login).Methods(http.MethodPost)
	authR.HandleFunc("/session-management/reauth", h.reauth).Methods(http.MethodPost)
	authR.HandleFunc("/session-management/refresh-jwt", h.refresh).Methods(http.MethodPost)

	userR := api.PathPrefix("/user").Subrouter()
	userR.Use(interceptors.RequireLogin(h.auth, h.WriteError))
	userR.HandleFunc("/me", h.me).Methods(http.MethodGet)
	userR.HandleFunc("/2fa/start", h.startTwoFactor).Methods(http.MethodPost)
	userR.HandleFunc("/2fa/confirm", h.confirmTwoFactor).Methods(http.MethodPost)
	userR.HandleFunc("/2fa/disable", h.disableTwoFactor).Methods(http.MethodPost)
	userR.HandleFunc("/change-password", h.changePassword).Methods(http.MethodPost)
	userR.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	userR.HandleFunc("/logout-other-sessions", h.logoutOtherSessions).Methods(http.MethodPost)
	userR.HandleFunc("/logout-sessions", h.logoutSessions).Methods(http.MethodPost)
	userR.HandleFunc("/session", h.currentSession).Methods(http.MethodGet)
	userR.HandleFunc("/sessions", h.listSessions).Methods(http.MethodPost)
	userR.HandleFunc("/sessions", h.deleteSessions).Methods(http.MethodDelete)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
	}, interceptors.GetClient(r.Context()))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.writeIssued(w, issued, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
	}, interceptors.GetClient(r.Context()))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.writeIssued(w, issued, http.StatusOK)
}

func (h *Handler) reauth(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.auth.Reauth(r.Context(), sessionToken(r), req.Password, req.MFACode, interceptors.GetClient(r.Context()))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.writeIssued(w, issued, http.StatusOK)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	issued, err := h.auth.Refresh(r.Context(), sessionToken(r), interceptors.GetClient(r.Context()))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	setAuthCookies(w, issued, h.accessTTL)
	writeJSON(w, http.StatusOK, h.sessionFromIssued(issued))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	u, err := h.auth.Me(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.auth.CurrentSession(r.Context(), mustIdentity(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	s := info.Session
	writeJSON(w, http.StatusOK, currentSessionJSON{
		sessionJSON: sessionJSON{
			SessionID:     s.ID,
			UserID:        s.UserID,
			DeviceName:    s.DeviceName,
			IPAddress:     s.IPAddress,
			CreatedAt:     s.CreatedAt,
			LastUsedAt:    s.LastUsedAt,
			JWTValidUntil: info.JWTValidUntil,
			LoggedInUntil: info.LoggedInUntil,
		},
		RefreshableUntil: info.RefreshableUntil,
	})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.auth.ChangePassword(r.Context(), mustIdentity(r), service.ChangePasswordInput{
		Password:          req.Password,
		MFACode:           req.MFACode,
		NewPassword:       req.NewPassword,
		KeepOtherSessions: req.KeepOtherSessions,
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), mustIdentity(r)); err != nil {
		h.WriteError(w, r, err)
		return
	}
	clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutOtherSessions(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.auth.LogoutOtherSessions(r.Context(), mustIdentity(r), req.Password, req.MFACode)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loggedOutResponse{LoggedOut: n})
}

func (h *Handler) logoutSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.LogoutSessions(r.Context(), mustIdentity(r), req.Password, req.MFACode, req.SessionIDs); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	views, err := h.auth.ListSessions(r.Context(), mustIdentity(r), req.Password, req.MFACode)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	out := make([]sessionViewJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toSessionViewJSON(v))
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: out})
}

func (h *Handler) deleteSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.DeleteSessions(r.Context(), mustIdentity(r), req.Password, req.MFACode, req.SessionIDs); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	enrollment, err := h.twoFactor.Start(r.Context(), mustIdentity(r).UserID, req.Password)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (h *Handler) confirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	codes, err := h.twoFactor.Confirm(r.Context(), mustIdentity(r).UserID, req.Password, req.Code)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.twoFactor.Disable(r.Context(), mustIdentity(r).UserID, req.Password, req.Code); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeIssued sets the auth cookies and renders the account with its new
// session. The rotation has already committed, so nothing here may fail.
func (h *Handler) writeIssued(w http.ResponseWriter, issued *service.Issued, status int) {
	setAuthCookies(w, issued, h.accessTTL)
	writeJSON(w, status, authResponse{User: toUserJSON(issued.User), Session: h.sessionFromIssued(issued)})
}

func (h *Handler) sessionFromIssued(issued *service.Issued) sessionJSON {
	s := issued.Session
	return sessionJSON{
		SessionID:     s.ID,
		UserID:        s.UserID,
		DeviceName:    s.DeviceName,
		IPAddress:     s.IPAddress,
		CreatedAt:     s.CreatedAt,
		LastUsedAt:    s.LastUsedAt,
		JWTValidUntil: issued.AccessExpiresAt,
		LoggedInUntil: h.auth.Policy().LoggedInUntil(s),
	}
}

// mustIdentity returns the caller stored by RequireLogin. Routes reaching it
// without one are mounted outside the /api/user subrouter by mistake.
func mustIdentity(r *http.Request) *service.Identity {
	id, ok := interceptors.GetIdentity(r.Context())
	if !ok {
		panic("identity handler: route served without RequireLogin")
	}
	return id
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
