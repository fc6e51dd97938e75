// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/store"
)

type createSessionRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ScheduledAt *int64 `json:"scheduledAt"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.ID
	if id == "" {
		// Sessions default to one per day.
		id = time.Now().Format("2006-01-02")
	}

	if _, err := s.store.GetSession(r.Context(), id); err == nil {
		writeError(w, http.StatusBadRequest, "session already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeStoreError(w, err)
		return
	}

	sess, err := s.store.CreateSession(r.Context(), store.Session{
		ID:          id,
		Title:       req.Title,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := s.log.With().
		Str(xlog.FieldSessionID, id).
		Str(xlog.FieldCorrelationID, uuid.NewString()).
		Logger()

	sess, err := s.recorder.Start(r.Context(), id)
	if err != nil {
		logger.Warn().Err(err).Msg("start rejected")
		writeRecorderError(w, err)
		return
	}

	logger.Info().Msg("start accepted")
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := s.log.With().
		Str(xlog.FieldSessionID, id).
		Str(xlog.FieldCorrelationID, uuid.NewString()).
		Logger()

	sess, err := s.recorder.Stop(r.Context(), id)
	if err != nil {
		logger.Warn().Err(err).Msg("stop rejected")
		writeRecorderError(w, err)
		return
	}

	logger.Info().Msg("stop accepted")
	writeJSON(w, http.StatusOK, sess)
}

type updateScheduleRequest struct {
	ScheduledAt int64   `json:"scheduledAt"`
	Title       *string `json:"title"`
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sess.State != store.StateScheduled {
		writeError(w, http.StatusBadRequest, "can only update schedule for scheduled sessions")
		return
	}

	upd := store.SessionUpdate{ScheduledAt: &req.ScheduledAt, Title: req.Title}
	updated, err := s.store.UpdateSession(r.Context(), id, upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
