// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status            string `json:"status"`
	Recording         bool   `json:"recording"`
	CurrentSessionID  string `json:"currentSessionId,omitempty"`
	RecordingDuration *int64 `json:"recordingDuration,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Recording: s.recorder.IsRecording(),
		Timestamp: time.Now().UnixMilli(),
	}
	resp.CurrentSessionID = s.recorder.CurrentSessionID()
	if elapsed, ok := s.recorder.ElapsedSeconds(); ok {
		resp.RecordingDuration = &elapsed
	}
	writeJSON(w, http.StatusOK, resp)
}
