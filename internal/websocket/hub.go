package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/athena/internal/server"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// MessageConsoleLine carries one drained process output line.
	MessageConsoleLine = "console_line"
	// MessageSubscribed is sent to a client when it joins a server room.
	MessageSubscribed = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Payload   interface{}            `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// LineFilter selects which console lines a viewer receives.
type LineFilter interface {
	Match(line string) bool
}

// Client is one console viewer. Room is the server id it watches; a nil
// Filter receives every line.
type Client struct {
	ID       string
	Operator string
	Conn     *websocket.Conn
	Room     string
	Filter   LineFilter
	Send     chan *Message
	Hub      *Hub
	mu       sync.Mutex
}

// Hub fans drained lines out to the viewers of each server.
type Hub struct {
	rooms map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client

	broadcast chan *BroadcastMessage
	dropped   atomic.Int64

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	Room    string
	Text    string
	Message *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 1024),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

// ObserveLine publishes a drained line to the server's room. It never
// blocks; lines are dropped when the hub is saturated.
func (h *Hub) ObserveLine(serverID string, line server.OutputLine) {
	bm := &BroadcastMessage{
		Room: serverID,
		Text: line.Text,
		Message: &Message{
			Type:      MessageConsoleLine,
			Payload:   line,
			Timestamp: line.Timestamp,
		},
	}

	select {
	case h.broadcast <- bm:
	default:
		h.dropped.Add(1)
	}
}

// Dropped is the number of lines discarded because the hub was saturated.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	log.Printf("[WebSocket] Client %s (operator=%s) watching server %s. Viewers: %d",
		client.ID, client.Operator, client.Room, len(h.rooms[client.Room]))

	select {
	case client.Send <- &Message{
		Type:      MessageSubscribed,
		Payload:   map[string]interface{}{"server_id": client.Room, "client_id": client.ID},
		Timestamp: time.Now(),
	}:
	default:
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.Send)

	if len(clients) == 0 {
		delete(h.rooms, client.Room)
	}
	log.Printf("[WebSocket] Client %s stopped watching server %s", client.ID, client.Room)
}

func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		if client.Filter != nil && !client.Filter.Match(bm.Text) {
			continue
		}
		select {
		case client.Send <- bm.Message:
		default:
			// slow viewer; drop rather than stall the hub
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// ReadPump keeps the connection alive and unregisters the client when the
// viewer goes away. Console streams are read-only, so inbound frames are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			return
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("[WebSocket] Failed to marshal message: %v", err)
				w.Close()
				continue
			}
			w.Write(data)

			// batch whatever is already queued into the same frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				data, err := json.Marshal(<-c.Send)
				if err != nil {
					continue
				}
				w.Write([]byte("\n"))
				w.Write(data)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(msgType string, payload interface{}) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client send channel is closed")
		}
	}()

	select {
	case c.Send <- &Message{Type: msgType, Payload: payload, Timestamp: time.Now()}:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}
