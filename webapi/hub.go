// This file contains the Hub, which manages WebSocket client connections and
// fans scheduler events and telemetry samples out to all of them.
package webapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ai_backend/core"
	"ai_backend/scheduler"
)

// Hub manages WebSocket client connections and broadcasts stream frames to
// all of them. It implements scheduler.Notifier so the scheduler can publish
// job transitions directly; the broadcast channel keeps publishing
// non-blocking as the Notifier contract requires.
//
// Thread-safe for concurrent connections and broadcasts.
type Hub struct {
	clients   map[*websocket.Conn]hubClient
	clientsMu sync.RWMutex

	broadcast  chan StreamMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	upgrader websocket.Upgrader

	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64

	// snapshot builds the initial frame for a new client; nil skips it
	snapshot func() InitialData

	logger *zap.Logger
}

type hubClient struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// HubConfig holds tuning knobs for the Hub.
type HubConfig struct {
	// PingInterval is how often to ping clients (default: 30s)
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before dropping (default: 60s)
	PongWait time.Duration

	// WriteWait is the per-frame write deadline (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize caps inbound client frames (default: 512 bytes)
	MaxMessageSize int64

	// BroadcastBufferSize is the shared broadcast buffer (default: 256)
	BroadcastBufferSize int

	// ClientSendBufferSize is the per-client send buffer (default: 256)
	ClientSendBufferSize int
}

// DefaultHubConfig returns the default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
	}
}

// NewHub creates a Hub with default configuration.
func NewHub(logger *zap.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a Hub. Call Run to start the broadcast loop.
func NewHubWithConfig(cfg HubConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}
	if cfg.BroadcastBufferSize <= 0 {
		cfg.BroadcastBufferSize = 256
	}
	if cfg.ClientSendBufferSize <= 0 {
		cfg.ClientSendBufferSize = 256
	}

	return &Hub{
		clients:        make(map[*websocket.Conn]hubClient),
		broadcast:      make(chan StreamMessage, cfg.BroadcastBufferSize),
		register:       make(chan *websocket.Conn),
		unregister:     make(chan *websocket.Conn),
		pingInterval:   cfg.PingInterval,
		pongWait:       cfg.PongWait,
		writeWait:      cfg.WriteWait,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger.Named("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment behind the dashboard.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetSnapshot registers the builder for the initial frame sent to each new
// client. Must be called before Run.
func (h *Hub) SetSnapshot(fn func() InitialData) { h.snapshot = fn }

// Run drives registration, broadcast, and keep-alive until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	h.logger.Info("hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopping")
			h.closeAll()
			return

		case conn := <-h.register:
			h.addClient(conn)

		case conn := <-h.unregister:
			h.removeClient(conn)

		case msg := <-h.broadcast:
			h.broadcastFrame(msg)

		case <-pingTicker.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades an HTTP request to a WebSocket and registers
// the client with the hub.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(h.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	h.register <- conn
	go h.readPump(conn)
}

// JobTransition implements scheduler.Notifier. Frames are queued; a full
// buffer drops the frame rather than blocking the dispatch path.
func (h *Hub) JobTransition(ev scheduler.Event) {
	h.Broadcast(NewJobUpdateMessage(ev))
}

// BroadcastTelemetry publishes an accelerator sample to all clients.
func (h *Hub) BroadcastTelemetry(m core.AcceleratorMetrics) {
	h.Broadcast(NewTelemetryMessage(m))
}

// Broadcast queues a frame for delivery to every connected client.
// Non-blocking; drops the frame when the buffer is full.
func (h *Hub) Broadcast(msg StreamMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast buffer full, dropping frame",
			zap.String("type", msg.Type))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	client := hubClient{
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, 256),
	}
	h.clients[conn] = client
	total := len(h.clients)
	h.clientsMu.Unlock()

	go h.writePump(conn, client.send)

	if h.snapshot != nil {
		h.sendTo(conn, NewInitialMessage(h.snapshot()))
	}

	h.logger.Info("client connected",
		zap.String("remote", client.remoteAddr), zap.Int("total", total))
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if client, ok := h.clients[conn]; ok {
		close(client.send)
		delete(h.clients, conn)
		conn.Close()
		h.logger.Info("client disconnected",
			zap.String("remote", client.remoteAddr), zap.Int("total", len(h.clients)))
	}
}

func (h *Hub) broadcastFrame(msg StreamMessage) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("frame encode failed", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for conn, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// The client is not draining its buffer; drop it.
			h.logger.Warn("client send buffer full, closing",
				zap.String("remote", client.remoteAddr))
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) sendTo(conn *websocket.Conn, msg StreamMessage) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("frame encode failed", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	client, ok := h.clients[conn]
	h.clientsMu.RUnlock()

	if ok {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full",
				zap.String("remote", client.remoteAddr))
		}
	}
}

func (h *Hub) pingAll() {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for conn, client := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			h.logger.Warn("ping failed",
				zap.String("remote", client.remoteAddr), zap.Error(err))
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn, client := range h.clients {
		close(client.send)
		conn.Close()
		delete(h.clients, conn)
	}
}

// readPump drains inbound frames; clients only send pongs and closes.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warn("write failed", zap.Error(err))
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}
