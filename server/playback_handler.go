package server

import (
	"encoding/json"
	"net/http"

	"RoomFM/model"

	"github.com/gorilla/mux"
)

type setTrackRequest struct {
	TrackID          string `json:"trackId"`
	StartingOffsetMs int64  `json:"startingOffsetMs"`
	Paused           bool   `json:"paused"`
}

type playbackResponse struct {
	Playback model.PlaybackState `json:"playback"`
	OffsetMs int64               `json:"offsetMs"`
}

type advanceResponse struct {
	Advanced bool                `json:"advanced"`
	Snapshot *model.RoomSnapshot `json:"snapshot"`
}

// GetPlaybackHandler returns the playback state with the effective offset
// computed at the instant of the request.
func (h *APIHandler) GetPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	pb, offset, err := h.eng.Playback(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackResponse{Playback: pb, OffsetMs: offset})
}

// SetTrackHandler replaces what is playing in the room.
func (h *APIHandler) SetTrackHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	listenerID, err := GetListenerIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req setTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.TrackID == "" {
		badRequest(w, "trackId is required")
		return
	}

	snap, err := h.eng.SetTrack(r.Context(), roomID, req.TrackID, req.StartingOffsetMs, req.Paused, listenerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PauseHandler freezes playback at the current offset.
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snap, err := h.eng.Pause(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ResumeHandler restarts playback from the frozen offset.
func (h *APIHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snap, err := h.eng.Resume(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AdvanceHandler moves to the next queued track when the playing track has
// finished. A no-op otherwise; clients may call it eagerly.
func (h *APIHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	advanced, snap, err := h.eng.AdvanceIfFinished(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Advanced: advanced, Snapshot: snap})
}
