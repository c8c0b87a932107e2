package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/p-arndt/querybench/internal/config"
)

type Server struct {
	cfg       *config.Config
	optimizer Optimizer
	deps      map[string]Pinger
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer builds the HTTP surface. deps are checked by /readyz in name order.
func NewServer(cfg *config.Config, opt Optimizer, deps map[string]Pinger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		optimizer: opt,
		deps:      deps,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /optimize", s.handleOptimize)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /readyz", s.handleReady)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.deps[name].Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "dependency", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
