package server

import (
	"encoding/json"
	"net/http"

	"RoomFM/logger"
	"RoomFM/model"

	"github.com/gorilla/mux"
)

type upsertArtistRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

type upsertTrackRequest struct {
	ID         string `json:"id"`
	ArtistID   string `json:"artistId"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	DurationMs int64  `json:"durationMs"`
}

type upsertEmbeddingRequest struct {
	Vector model.Vector `json:"vector"`
}

// UpsertArtistHandler ingests or updates an artist.
func (h *APIHandler) UpsertArtistHandler(w http.ResponseWriter, r *http.Request) {
	var req upsertArtistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" {
		badRequest(w, "id and name are required")
		return
	}

	artist := &model.Artist{ID: req.ID, Name: req.Name, URI: req.URI}
	if err := h.trackRepo.UpsertArtist(r.Context(), artist); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

// UpsertTrackHandler ingests or updates a track.
func (h *APIHandler) UpsertTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req upsertTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ID == "" || req.ArtistID == "" || req.Title == "" {
		badRequest(w, "id, artistId and title are required")
		return
	}
	if req.DurationMs < 0 {
		badRequest(w, "durationMs must be non-negative")
		return
	}

	track := &model.Track{
		ID:         req.ID,
		ArtistID:   req.ArtistID,
		Title:      req.Title,
		URI:        req.URI,
		DurationMs: req.DurationMs,
	}
	if err := h.eng.IngestTrack(r.Context(), track); err != nil {
		writeError(w, err)
		return
	}

	logger.Info("track ingested",
		logger.String("track", track.ID),
		logger.String("artist", track.ArtistID))
	writeJSON(w, http.StatusOK, track)
}

// GetTracksByArtistHandler lists an artist's catalog.
func (h *APIHandler) GetTracksByArtistHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]

	tracks, err := h.trackRepo.TracksByArtist(r.Context(), artistID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// UpsertEmbeddingHandler ingests a track's vector. The dimension must match
// the process-wide setting.
func (h *APIHandler) UpsertEmbeddingHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	var req upsertEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.eng.IngestEmbedding(r.Context(), trackID, req.Vector); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
