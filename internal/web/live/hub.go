// Package live pushes guestbook events to browsers over WebSocket.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of live event
type EventType string

const (
	EventConnected  EventType = "connected"
	EventEntryAdded EventType = "entry_added"
	EventHeartbeat  EventType = "heartbeat"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
	clientBuffer   = 32
)

// Event is a message sent to every connected client
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// client is one WebSocket connection
type client struct {
	id       string
	conn     *websocket.Conn
	messages chan []byte
}

// Hub manages WebSocket clients and event broadcasting
type Hub struct {
	clients      map[string]*client
	register     chan *client
	unregister   chan *client
	broadcast    chan Event
	done         chan struct{}
	stopOnce     sync.Once
	mu           sync.RWMutex
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewHub creates a hub and starts its dispatch loop. Clients are pinged every pingInterval.
func NewHub(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	h := &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 100),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	heartbeatTicker := time.NewTicker(h.pingInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.messages)
			}
			h.clients = make(map[string]*client)
			h.mu.Unlock()
			log.Debug().Msg("Live hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug().Str("client_id", c.id).Int("total_clients", total).Msg("Live client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.messages)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug().Str("client_id", c.id).Int("total_clients", total).Msg("Live client disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal live event")
				continue
			}

			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.messages <- data:
				default:
					log.Warn().Str("client_id", c.id).Msg("Live client buffer full, dropping message")
				}
			}
			h.mu.RUnlock()

		case <-heartbeatTicker.C:
			h.Broadcast(Event{Type: EventHeartbeat, Data: map[string]any{"time": time.Now().Unix()}})
		}
	}
}

// Broadcast queues an event for every connected client
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Live broadcast channel full, dropping event")
	}
}

// Stop disconnects every client and stops the hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket and streams events until
// either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Debug().Err(err).Msg("Live feed upgrade failed")
		return
	}

	c := &client{
		id:       uuid.NewString(),
		conn:     conn,
		messages: make(chan []byte, clientBuffer),
	}

	// Queued before registering so the hub can never have closed the channel yet.
	hello, _ := json.Marshal(Event{
		Type: EventConnected,
		Data: map[string]any{"client_id": c.id, "time": time.Now().Unix()},
	})
	c.messages <- hello

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.readPump(c)
	h.writePump(c)
}

// readPump discards client messages and notices when the peer goes away.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client_id", c.id).Msg("Live client read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.messages:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
