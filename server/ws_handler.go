package server

import (
	"context"
	"net/http"

	"RoomFM/core/auth"
	"RoomFM/core/room"
	"RoomFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades to a websocket subscription for room snapshots. The
// socket is push-only; joining, leaving, and every mutation stay on the REST
// API. The token rides a query parameter because browsers cannot set headers
// on websocket dials.
func (h *APIHandler) WSHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token query parameter is required"})
		return
	}
	claims, err := auth.ParseToken(token, h.cfg.JWTSecret)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		return
	}

	rm, err := h.roomRepo.RoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rm == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.String("room", roomID),
			logger.ErrorField(err))
		return
	}

	client := &room.Client{
		Hub:        h.hub,
		Conn:       conn,
		Send:       make(chan []byte, 64),
		RoomID:     roomID,
		ListenerID: claims.ListenerID,
	}
	h.hub.Register(client)

	// The request context dies when this handler returns; the pumps outlive it.
	go client.WritePump()
	go client.ReadPump(context.Background())

	// Push the current state so a late subscriber does not wait for the next
	// mutation.
	if snap, err := h.eng.Snapshot(r.Context(), roomID); err == nil {
		h.hub.PublishSnapshot(roomID, snap)
	}
}
