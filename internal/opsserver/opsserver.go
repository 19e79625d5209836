// Package opsserver exposes the minimal operational surface the Core
// Runtime listens on: liveness/readiness and a live-supervisor count. It is
// deliberately not the management surface — no auth, no device CRUD, no
// static assets.
package opsserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger is the minimal store surface /healthz depends on.
type Pinger interface {
	Ping() error
}

// ReconcilerStatus is the reconciler surface /status reports.
type ReconcilerStatus interface {
	LiveCount() int
}

// Server is the ops HTTP surface.
type Server struct {
	router     chi.Router
	store      Pinger
	reconciler ReconcilerStatus
}

// New constructs a Server. store and reconciler may be nil in tests that
// only exercise one handler.
func New(store Pinger, reconciler ReconcilerStatus) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		reconciler: reconciler,
	}
	s.router.Use(middleware.Recoverer)
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type statusResponse struct {
	LiveDevices int `json:"live_devices"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := statusResponse{}
	if s.reconciler != nil {
		resp.LiveDevices = s.reconciler.LiveCount()
	}
	_ = json.NewEncoder(w).Encode(resp)
}
