package handler

import (
	"net/http"
)

// ServeHTTP answers plain HTTP readiness probes: 200 when ready, 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.Ready(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT_SERVING\n"))
		return
	}
	_, _ = w.Write([]byte("SERVING\n"))
}
