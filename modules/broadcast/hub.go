package broadcast

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// sendBuffer is the number of outbound frames queued per client before
// new frames are dropped.
const sendBuffer = 64

// Conn is the subset of a WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Envelope is the frame shape for every realtime event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	id     string
	room   string
	conn   Conn
	send   chan []byte
	done   chan struct{}
	closed bool
}

// Hub manages WebSocket connections and fans events out to rooms.
type Hub struct {
	clients map[string]*client         // clientID -> client
	rooms   map[string]map[string]bool // room -> set of clientIDs
	mu      sync.RWMutex
	logger  types.Logger
	done    chan struct{}
	pumps   sync.WaitGroup
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]bool),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run blocks until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.logger.Info("Hub shutting down", "clients", h.ClientCount())
	h.closeAllClients()
	h.pumps.Wait()
	close(h.done)
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		h.closeClient(c)
	}
	h.clients = make(map[string]*client)
	h.rooms = make(map[string]map[string]bool)
}

// closeClient stops the write pump. Callers hold h.mu.
func (h *Hub) closeClient(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Register adds a connection and starts its write pump. Registering an
// existing id replaces the old connection.
func (h *Hub) Register(id string, conn Conn) {
	c := &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		h.leaveLocked(old)
		h.closeClient(old)
	}
	h.clients[id] = c
	h.mu.Unlock()

	h.pumps.Add(1)
	go h.writePump(c)
	h.logger.Debug("Client registered", "clientID", id)
}

// Unregister removes a connection and its room membership.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveLocked(c)
	delete(h.clients, id)
	h.closeClient(c)
	h.logger.Debug("Client unregistered", "clientID", id)
}

func (h *Hub) writePump(c *client) {
	defer h.pumps.Done()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("Failed to send to client", "clientID", c.id, "error", err)
				return
			}
		}
	}
}

// JoinRoom moves a client to room, leaving its previous room.
func (h *Hub) JoinRoom(id, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveLocked(c)

	c.room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][id] = true
}

// LeaveRoom removes a client from its current room.
func (h *Hub) LeaveRoom(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		h.leaveLocked(c)
	}
}

func (h *Hub) leaveLocked(c *client) {
	if c.room == "" {
		return
	}
	if members := h.rooms[c.room]; members != nil {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("Failed to marshal event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

// enqueue queues data for c without blocking. Callers hold h.mu.
func (h *Hub) enqueue(c *client, event string, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Client send buffer full, dropping event", "clientID", c.id, "event", event)
	}
}

// SendTo delivers an event to a single client.
func (h *Hub) SendTo(id, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[id]; ok {
		h.enqueue(c, event, data)
	}
}

// BroadcastRoom delivers an event to every member of room except the
// listed client ids. Membership is read once, when the call is made.
func (h *Hub) BroadcastRoom(room, event string, payload any, except ...string) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.rooms[room] {
		if slices.Contains(except, id) {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.enqueue(c, event, data)
		}
	}
}

// BroadcastAll delivers an event to every connected client.
func (h *Hub) BroadcastAll(event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, event, data)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients in a room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
