package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Command is an inbound request from a UI client, forwarded to the engine.
type Command struct {
	Type        string `json:"type"`
	ClientID    string `json:"-"`
	RemoteURL   string `json:"remoteUrl,omitempty"`
	RemoteKey   string `json:"remoteKey,omitempty"`
	UserID      string `json:"userId,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Inbound command types accepted from UI clients.
const (
	CmdConfigure        = "configure"
	CmdRefresh          = "refresh"
	CmdTestNotification = "test_notification"
	CmdDebug            = "debug"
)

// Hub maintains the set of connected UI clients. Outbound events travel on
// two independent paths: Broadcast fans out to every client, SendTo targets
// one known client directly.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	commands chan<- Command
	logger   *slog.Logger
}

// NewHub creates a Hub that forwards inbound client commands to the given
// channel. A nil channel discards commands.
func NewHub(commands chan<- Command, logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		commands: commands,
		logger:   logger,
	}
}

// SetCommandSink wires the engine's command queue after construction,
// breaking the hub/engine construction cycle. Call before the HTTP surface
// starts accepting connections.
func (h *Hub) SetCommandSink(commands chan<- Command) {
	h.mu.Lock()
	h.commands = commands
	h.mu.Unlock()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to all connected clients. A slow client's full
// buffer drops the event for that client rather than blocking the rest.
func (h *Hub) Broadcast(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
	return nil
}

// SendTo delivers an event to one known client.
func (h *Hub) SendTo(clientID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal direct message: %w", err)
	}

	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", clientID)
	}
}

// ClientIDs returns the ids of all connected clients.
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(clientID string, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.logger.Warn("malformed client message", "client", clientID, "error", err)
		return
	}
	cmd.ClientID = clientID

	switch cmd.Type {
	case CmdConfigure, CmdRefresh, CmdTestNotification, CmdDebug:
	default:
		h.logger.Warn("unknown client command", "client", clientID, "type", cmd.Type)
		return
	}

	h.mu.RLock()
	commands := h.commands
	h.mu.RUnlock()
	if commands == nil {
		return
	}
	select {
	case commands <- cmd:
	default:
		h.logger.Warn("command queue full, dropping", "type", cmd.Type)
	}
}
