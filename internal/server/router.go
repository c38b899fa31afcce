package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	healthhandler "transcendence/backend/internal/health/handler"
	identityhandler "transcendence/backend/internal/identity/handler"
	"transcendence/backend/internal/server/interceptors"
)

const healthPath = "/healthz"

// HTTPDeps holds the handlers mounted on the HTTP router. Nil handlers are skipped.
type HTTPDeps struct {
	Identity *identityhandler.Handler
	Health   *healthhandler.Server
	Logger   *slog.Logger
}

// NewRouter returns the HTTP router. Every route runs behind ClientInfo (device
// cookie, client IP) and Telemetry (span, request log); /api/user routes also
// require a valid access token.
func NewRouter(deps HTTPDeps) *mux.Router {
	r := mux.NewRouter()
	if deps.Health != nil {
		r.Handle(healthPath, deps.Health).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(interceptors.ClientInfo, interceptors.Telemetry(deps.Logger, nil))
	if deps.Identity != nil {
		deps.Identity.Routes(api)
	}
	return r
}
