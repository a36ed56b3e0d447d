package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type enqueueRequest struct {
	TrackID string `json:"trackId"`
	Note    string `json:"note,omitempty"`
}

type seedResponse struct {
	Added int `json:"added"`
}

// GetQueueHandler returns the queue in play order.
func (h *APIHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	items, err := h.eng.Queue(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// EnqueueHandler appends a track request to the queue.
func (h *APIHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	listenerID, err := GetListenerIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.TrackID == "" {
		badRequest(w, "trackId is required")
		return
	}

	item, err := h.eng.Enqueue(r.Context(), roomID, req.TrackID, req.Note, listenerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// RemoveQueueItemHandler withdraws a pending queue item.
func (h *APIHandler) RemoveQueueItemHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["id"]
	itemID := vars["item_id"]

	if err := h.eng.RemoveQueueItem(r.Context(), roomID, itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// PopQueueHandler removes and returns the queue head, 204 when empty.
func (h *APIHandler) PopQueueHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	item, err := h.eng.DequeueNext(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// SeedQueueHandler fills the queue from the room artist's catalog, skipping
// tracks already queued or recently played.
func (h *APIHandler) SeedQueueHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	added, err := h.eng.SeedCatalog(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seedResponse{Added: added})
}
