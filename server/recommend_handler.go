package server

import (
	"encoding/json"
	"net/http"

	"RoomFM/config"

	"github.com/gorilla/mux"
)

type acceptRequest struct {
	TrackID string `json:"trackId"`
}

// RankHandler returns the top k scored suggestions for the room. Purely a
// read; nothing in the room changes until a suggestion is accepted.
func (h *APIHandler) RankHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	k := intQuery(r, "k", 10)

	ranked, err := h.eng.Rank(r.Context(), roomID, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// AcceptHandler enqueues a previously suggested track.
func (h *APIHandler) AcceptHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	listenerID, err := GetListenerIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.TrackID == "" {
		badRequest(w, "trackId is required")
		return
	}

	item, err := h.eng.Accept(r.Context(), roomID, req.TrackID, listenerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetWeightsHandler reports the live scoring weights.
func (h *APIHandler) GetWeightsHandler(w http.ResponseWriter, r *http.Request) {
	weights := h.eng.Scorer().Weights()
	writeJSON(w, http.StatusOK, config.Weights{
		Alpha: weights.Alpha,
		Beta:  weights.Beta,
		Gamma: weights.Gamma,
	})
}

// SetWeightsHandler replaces the scoring weights at runtime.
func (h *APIHandler) SetWeightsHandler(w http.ResponseWriter, r *http.Request) {
	var req config.Weights
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.eng.Scorer().SetWeights(toScorerWeights(req)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
