// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aircast/aircast/internal/store"
)

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.ListTracks(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tracks == nil {
		tracks = []store.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

type createTrackRequest struct {
	Position         int    `json:"position"`
	TimestampSeconds int64  `json:"timestampSeconds"`
	Artist           string `json:"artist"`
	Title            string `json:"title"`
	Label            string `json:"label"`
}

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req createTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}

	track, err := s.store.CreateTrack(r.Context(), store.Track{
		SessionID:        sessionID,
		Position:         req.Position,
		TimestampSeconds: req.TimestampSeconds,
		Artist:           req.Artist,
		Title:            req.Title,
		Label:            req.Label,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

type updateTrackRequest struct {
	Position         *int    `json:"position"`
	TimestampSeconds *int64  `json:"timestampSeconds"`
	Artist           *string `json:"artist"`
	Title            *string `json:"title"`
	Label            *string `json:"label"`
}

func (s *Server) handleUpdateTrack(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(chi.URLParam(r, "trackID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	var req updateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	track, err := s.store.UpdateTrack(r.Context(), trackID, store.TrackUpdate{
		Position:         req.Position,
		TimestampSeconds: req.TimestampSeconds,
		Artist:           req.Artist,
		Title:            req.Title,
		Label:            req.Label,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(chi.URLParam(r, "trackID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	if err := s.store.DeleteTrack(r.Context(), trackID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
