// SPDX-License-Identifier: MIT

// Package api exposes the admin HTTP surface: session and track CRUD,
// recording control and health reporting.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/store"
)

// RecorderService is the orchestrator surface consumed by the handlers.
type RecorderService interface {
	Start(ctx context.Context, sessionID string) (*store.Session, error)
	Stop(ctx context.Context, sessionID string) (*store.Session, error)
	IsRecording() bool
	CurrentSessionID() string
	ElapsedSeconds() (int64, bool)
}

// Server holds the handler dependencies.
type Server struct {
	store    store.Store
	recorder RecorderService
	log      zerolog.Logger
}

// New builds a Server.
func New(st store.Store, rec RecorderService) *Server {
	return &Server{
		store:    st,
		recorder: rec,
		log:      xlog.WithComponent("api"),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Post("/{id}/start", s.handleStartRecording)
		r.Post("/{id}/stop", s.handleStopRecording)
		r.Put("/{id}/schedule", s.handleUpdateSchedule)
	})

	r.Route("/api/tracks", func(r chi.Router) {
		r.Get("/{sessionID}", s.handleListTracks)
		r.Post("/{sessionID}", s.handleCreateTrack)
		r.Put("/{sessionID}/{trackID}", s.handleUpdateTrack)
		r.Delete("/{sessionID}/{trackID}", s.handleDeleteTrack)
	})

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str(xlog.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
