// Package httpapi exposes MemoryGateway's three operations over a thin,
// unauthenticated HTTP surface. Transport concerns (auth, rate limiting)
// are deliberately out of scope; this is a reference surface only.
package httpapi

import (
	"net/http"

	"memoryd/internal/gateway"
)

// Server wires net/http handlers to a gateway.Gateway.
type Server struct {
	gw  *gateway.Gateway
	mux *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{gw: gw, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/users/{user}/sessions/{session}/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("POST /v1/users/{user}/sessions/{session}/memory-request", s.handleMemoryRequest)
	s.mux.HandleFunc("POST /v1/users/{user}/sessions/{session}/memory-commit", s.handleMemoryCommit)
}
