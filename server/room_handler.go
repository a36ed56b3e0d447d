package server

import (
	"encoding/json"
	"net/http"
	"time"

	"RoomFM/core/auth"
	"RoomFM/logger"
	"RoomFM/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type createRoomRequest struct {
	ID       string `json:"id,omitempty"`
	ArtistID string `json:"artistId"`
	Name     string `json:"name"`
}

type roomResponse struct {
	*model.Room
	ActiveListeners []string `json:"activeListeners,omitempty"`
}

type tokenRequest struct {
	ListenerID string `json:"listenerId"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// TokenHandler issues a listener token. There is no account system; a client
// names its listener id and gets a signed token for it.
func (h *APIHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ListenerID == "" {
		req.ListenerID = uuid.NewString()
	}

	token, err := auth.GenerateToken(req.ListenerID, h.cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// CreateRoomHandler creates a listening room scoped to one artist.
func (h *APIHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ArtistID == "" || req.Name == "" {
		badRequest(w, "artistId and name are required")
		return
	}

	artist, err := h.trackRepo.ArtistByID(r.Context(), req.ArtistID)
	if err != nil {
		writeError(w, err)
		return
	}
	if artist == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "unknown artist " + req.ArtistID})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		exists, err := h.roomRepo.ExistsByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if exists {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "room id already taken"})
			return
		}
	}

	newRoom := &model.Room{
		ID:       id,
		ArtistID: req.ArtistID,
		Name:     req.Name,
	}
	if err := h.roomRepo.Create(r.Context(), newRoom); err != nil {
		writeError(w, err)
		return
	}

	logger.Info("room created",
		logger.String("room", newRoom.ID),
		logger.String("artist", newRoom.ArtistID))
	writeJSON(w, http.StatusCreated, newRoom)
}

// GetRoomHandler returns a room plus its active listener ids.
func (h *APIHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	rm, err := h.roomRepo.RoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rm == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}

	listeners, err := h.stateCache.ActiveListeners(r.Context(), roomID)
	if err != nil {
		logger.Warn("failed to load active listeners",
			logger.String("room", roomID),
			logger.ErrorField(err))
		listeners = nil
	}

	writeJSON(w, http.StatusOK, roomResponse{Room: rm, ActiveListeners: listeners})
}

// ListRoomsHandler lists rooms, newest first.
func (h *APIHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	rooms, err := h.roomRepo.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// SnapshotHandler returns the room's current snapshot.
func (h *APIHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snap, err := h.eng.Snapshot(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// JoinRoomHandler registers the caller as a listener. The first listener of a
// paused room resumes playback.
func (h *APIHandler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	listenerID, err := GetListenerIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	snap, err := h.eng.Join(r.Context(), roomID, listenerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.stateCache.TouchPresence(r.Context(), roomID, listenerID); err != nil {
		logger.Warn("failed to touch presence on join",
			logger.String("room", roomID),
			logger.String("listener", listenerID),
			logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, snap)
}

// LeaveRoomHandler deregisters the caller. Playback pauses when the last
// listener leaves.
func (h *APIHandler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	listenerID, err := GetListenerIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	snap, err := h.eng.Leave(r.Context(), roomID, listenerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.stateCache.RemovePresence(r.Context(), roomID, listenerID); err != nil {
		logger.Warn("failed to remove presence on leave",
			logger.String("room", roomID),
			logger.String("listener", listenerID),
			logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, snap)
}
