package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"RoomFM/core/engine"
	"RoomFM/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps engine sentinels onto HTTP statuses. Unknown errors become
// 500 with a generic body; the detail goes to the log, not the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrInvalidTrack), errors.Is(err, engine.ErrInvalidConfiguration):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrNotASuggestion):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrStorageUnavailable):
		logger.Error("storage unavailable", logger.ErrorField(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
	default:
		logger.Error("internal error", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// badRequest writes a 400 with a message.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
