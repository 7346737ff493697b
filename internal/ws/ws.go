package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
)

// SnapshotFunc returns the current session snapshot as JSON bytes. The hub
// calls it once for every client on connect and again on a sync request.
type SnapshotFunc func() ([]byte, error)

// Hub manages WebSocket connections and broadcasts messages to all clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger
	mu         sync.RWMutex
	snapshot   SnapshotFunc
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetSnapshot sets the function used to build the full_state message sent to
// new and re-syncing clients.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// BroadcastSessionUpdate broadcasts a session state change.
func (h *Hub) BroadcastSessionUpdate(payload any) {
	msg, err := NewMessage(MsgSessionUpdate, payload)
	if err != nil {
		h.logger.Error("failed to create session_update message", "error", err)
		return
	}
	h.Broadcast(msg)
}

// BroadcastImportProgress broadcasts per-page import progress.
func (h *Hub) BroadcastImportProgress(payload any) {
	msg, err := NewMessage(MsgImportProgress, payload)
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// BroadcastCandidatesReady announces that relationship analysis produced candidates.
func (h *Hub) BroadcastCandidatesReady(payload any) {
	msg, err := NewMessage(MsgCandidatesReady, payload)
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// BroadcastProposalApplied announces a materialized schema proposal.
func (h *Hub) BroadcastProposalApplied(payload any) {
	msg, err := NewMessage(MsgProposalApplied, payload)
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// BroadcastError broadcasts an error to all clients.
func (h *Hub) BroadcastError(errMsg string) {
	msg, err := NewMessage(MsgError, map[string]string{"message": errMsg})
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON broadcasts any JSON-serializable payload with the given message type.
func (h *Hub) BroadcastJSON(msgType MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast payload", "error", err)
		return
	}
	msg, err := NewMessage(msgType, json.RawMessage(data))
	if err != nil {
		h.logger.Error("failed to create broadcast message", "error", err)
		return
	}
	h.Broadcast(msg)
}
