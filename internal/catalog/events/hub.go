// Package events streams catalog changes to WebSocket clients.
//
// The hub broadcasts a message whenever a build completes or a part is
// created or updated through the API. Browser integrations use it to refresh
// their view of the catalog without polling.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// MessageType defines the type of event message
type MessageType string

const (
	// MessageTypeHello is sent to every client right after it connects
	MessageTypeHello MessageType = "hello"

	// MessageTypeBuildComplete indicates a mirror build finished
	MessageTypeBuildComplete MessageType = "build_complete"

	// MessageTypePartCreated indicates a record was created
	MessageTypePartCreated MessageType = "part_created"

	// MessageTypePartUpdated indicates a record was updated
	MessageTypePartUpdated MessageType = "part_updated"
)

// Message is one event sent to clients
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds hub configuration
type Config struct {
	// OriginPatterns restricts WebSocket origins (default: any origin)
	OriginPatterns []string

	// WriteTimeout bounds each send to a client (default: 5s)
	WriteTimeout time.Duration

	// Logger for hub activity (default: no-op)
	Logger *zap.Logger
}

// Hub manages WebSocket clients and broadcasts messages to them.
// It implements http.Handler; mount it on the route clients connect to.
type Hub struct {
	config Config
	logger *zap.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewHub creates a hub. Call Start before broadcasting and Stop when done.
func NewHub(config Config) *Hub {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if len(config.OriginPatterns) == 0 {
		config.OriginPatterns = []string{"*"}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		config:    config,
		logger:    logger.Named("events"),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return
	}
	h.started = true

	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the broadcast loop to exit.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Broadcast queues a message for all connected clients. Messages are dropped
// when the queue is full or the hub is stopped.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	select {
	case <-h.ctx.Done():
		return
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", string(msg.Type)))
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// broadcastLoop sends queued messages to every client.
func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to marshal message", zap.Error(err))
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := h.write(conn, data); err != nil {
					h.logger.Debug("failed to send to client", zap.Error(err))
					h.removeClient(conn)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and keeps it registered
// until the client disconnects or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.ctx.Done():
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	hello, err := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now().UTC()})
	if err == nil {
		err = h.write(conn, hello)
	}
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Info("client connected", zap.Int("clients", clientCount))

	h.readLoop(conn)
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// readLoop drains client messages until the connection closes.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("client disconnected", zap.Int("clients", clientCount))
	} else {
		h.clientsMu.Unlock()
	}
}
