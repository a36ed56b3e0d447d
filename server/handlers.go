package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"RoomFM/cache"
	"RoomFM/config"
	"RoomFM/core/auth"
	"RoomFM/core/engine"
	"RoomFM/core/room"
	"RoomFM/repository"
)

type contextKey string

const listenerIDKey contextKey = "listenerID"

// APIHandler holds the wired collaborators behind the HTTP surface.
type APIHandler struct {
	eng        *engine.Engine
	roomRepo   repository.RoomRepository
	trackRepo  repository.TrackRepository
	stateCache *cache.RoomStateCache
	hub        *room.Hub
	cfg        *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	eng *engine.Engine,
	roomRepo repository.RoomRepository,
	trackRepo repository.TrackRepository,
	stateCache *cache.RoomStateCache,
	hub *room.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		eng:        eng,
		roomRepo:   roomRepo,
		trackRepo:  trackRepo,
		stateCache: stateCache,
		hub:        hub,
		cfg:        cfg,
	}
}

// AuthMiddleware validates the Bearer token and puts the listener id on the
// request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid authorization header format"})
			return
		}

		claims, err := auth.ParseToken(parts[1], h.cfg.JWTSecret)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), listenerIDKey, claims.ListenerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetListenerIDFromContext extracts the listener id set by AuthMiddleware.
func GetListenerIDFromContext(ctx context.Context) (string, error) {
	listenerID, ok := ctx.Value(listenerIDKey).(string)
	if !ok || listenerID == "" {
		return "", fmt.Errorf("listener id not found in context")
	}
	return listenerID, nil
}

// intQuery reads an integer query parameter with a fallback.
func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
