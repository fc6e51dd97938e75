// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aircast/aircast/internal/recorder"
	"github.com/aircast/aircast/internal/store"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with the given status code
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeRecorderError maps the recorder error taxonomy to HTTP status codes:
// Conflict -> 409, NotFound -> 404, BadState -> 400, anything else -> 500.
func writeRecorderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recorder.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recorder.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recorder.ErrBadState):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeStoreError maps store errors: NotFound -> 404, anything else -> 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
