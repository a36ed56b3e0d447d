package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"RoomFM/logger"
	"RoomFM/model"

	"github.com/gorilla/websocket"
)

// MessageType tags the websocket frames.
type MessageType string

const (
	MsgTypeSnapshot MessageType = "snapshot" // room state push
	MsgTypePing     MessageType = "ping"     // client heartbeat
	MsgTypePong     MessageType = "pong"     // heartbeat response
	MsgTypeError    MessageType = "error"    // error notice
)

// WSMessage is the websocket frame envelope.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Presence records listener heartbeats, backed by Redis.
type Presence interface {
	TouchPresence(ctx context.Context, roomID, listenerID string) error
	RemovePresence(ctx context.Context, roomID, listenerID string) error
}

// Client is one websocket subscriber. The connection is push-only apart from
// heartbeats; all room mutations go through the REST API.
type Client struct {
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	RoomID     string
	ListenerID string
}

// Hub fans room snapshots out to websocket subscribers. It satisfies the
// engine's notifier: every successful mutation ends up broadcast to the
// mutated room.
type Hub struct {
	rooms map[string]map[*Client]bool

	// One connection per listener per room; a reconnect kicks the old one.
	clients map[string]*Client // key: roomID:listenerID

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	presence Presence

	mu   sync.RWMutex
	done chan struct{}
}

type broadcastMessage struct {
	RoomID  string
	Message []byte
}

// NewHub creates a hub. presence may be nil when heartbeat tracking is off.
func NewHub(presence Presence) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run drives the hub loop until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and closes every client channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Register attaches a client to its room.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister detaches a client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// PublishSnapshot implements the engine notifier. It never blocks: when the
// broadcast buffer is full the snapshot is dropped, the next mutation will
// carry fresher state anyway.
func (h *Hub) PublishSnapshot(roomID string, snap *model.RoomSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Warn("failed to marshal room snapshot",
			logger.String("room", roomID),
			logger.ErrorField(err))
		return
	}
	frame, err := json.Marshal(&WSMessage{
		Type:      MsgTypeSnapshot,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{RoomID: roomID, Message: frame}:
	default:
		logger.Warn("snapshot broadcast buffer full, dropping",
			logger.String("room", roomID))
	}
}

// SubscriberCount returns the number of live connections in a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := h.clientKey(client.RoomID, client.ListenerID)
	if old, exists := h.clients[key]; exists {
		h.removeClient(old)
	}

	if h.rooms[client.RoomID] == nil {
		h.rooms[client.RoomID] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID][client] = true
	h.clients[key] = client

	if h.presence != nil {
		if err := h.presence.TouchPresence(context.Background(), client.RoomID, client.ListenerID); err != nil {
			logger.Warn("failed to touch presence on register",
				logger.ErrorField(err),
				logger.String("room", client.RoomID),
				logger.String("listener", client.ListenerID))
		}
	}

	logger.Info("client registered",
		logger.String("room", client.RoomID),
		logger.String("listener", client.ListenerID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// removeClient requires the hub lock.
func (h *Hub) removeClient(client *Client) {
	key := h.clientKey(client.RoomID, client.ListenerID)

	if clients, ok := h.rooms[client.RoomID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.rooms, client.RoomID)
			}
		}
	}
	delete(h.clients, key)

	if h.presence != nil {
		if err := h.presence.RemovePresence(context.Background(), client.RoomID, client.ListenerID); err != nil {
			logger.Warn("failed to remove presence on unregister",
				logger.ErrorField(err),
				logger.String("room", client.RoomID),
				logger.String("listener", client.ListenerID))
		}
	}

	logger.Info("client unregistered",
		logger.String("room", client.RoomID),
		logger.String("listener", client.ListenerID))
}

func (h *Hub) broadcastToRoom(msg *broadcastMessage) {
	h.mu.RLock()
	clients, ok := h.rooms[msg.RoomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.Send <- msg.Message:
		default:
			// Slow consumer, drop the connection. Removed inline: the hub
			// loop is the only unregister receiver and it is running this
			// code, so a channel send here would block forever.
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

func (h *Hub) clientKey(roomID, listenerID string) string {
	return fmt.Sprintf("%s:%s", roomID, listenerID)
}

// ========== Client pumps ==========

// ReadPump consumes frames from the connection until it drops. Only heartbeat
// frames are meaningful; anything else is ignored.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("room", c.RoomID),
						logger.String("listener", c.ListenerID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				continue
			}

			if msg.Type == MsgTypePing {
				if c.Hub.presence != nil {
					if err := c.Hub.presence.TouchPresence(ctx, c.RoomID, c.ListenerID); err != nil {
						logger.Warn("failed to touch presence",
							logger.ErrorField(err),
							logger.String("room", c.RoomID),
							logger.String("listener", c.ListenerID))
					}
				}
				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
			}
		}
	}
}

// WritePump flushes the send channel to the connection and keeps the link
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce anything else pending.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
