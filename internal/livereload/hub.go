// Package livereload pushes reload notifications to browsers connected to
// the development server over a websocket.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/validation"
)

// Message types sent to the browser.
const (
	MessageConnected  = "connected"
	MessageFullReload = "full_reload"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// Hub tracks connected browsers and fans messages out to them.
type Hub struct {
	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex

	broadcast chan []byte

	// allowedOrigins are origins or bare hosts accepted in addition to the
	// request's own host.
	allowedOrigins []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, 64),
		allowedOrigins: allowedOrigins,
		logger:         logger.WithComponent("livereload"),
		ctx:            ctx,
		cancel:         cancel,
	}
	go hub.run()
	return hub
}

// ServeHTTP upgrades the request and keeps the connection until the browser
// leaves or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" && !h.originAllowed(origin, r.Host) {
		h.logger.Warn(r.Context(), nil, "Rejected live reload connection", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin was checked above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
		addr: r.RemoteAddr,
	}
	h.register(c)
	defer h.unregister(c.conn)

	go h.writePump(c)
	h.queue(c, UpdateMessage{Type: MessageConnected, Timestamp: time.Now()})
	h.readPump(c)
}

func (h *Hub) originAllowed(origin, host string) bool {
	allowed := append([]string{host}, h.allowedOrigins...)
	return validation.ValidateOrigin(origin, allowed) == nil
}

func (h *Hub) run() {
	for {
		select {
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) register(c *client) {
	h.clientsMutex.Lock()
	h.clients[c.conn] = c
	count := len(h.clients)
	h.clientsMutex.Unlock()

	h.logger.Debug(h.ctx, "Live reload client connected", "remote", c.addr, "clients", count)
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	c, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
		close(c.send)
	}
	count := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "Live reload client disconnected", "remote", c.addr, "clients", count)
	}
}

// broadcastToClients drops clients whose send buffer is full.
func (h *Hub) broadcastToClients(message []byte) {
	var slow []*websocket.Conn

	h.clientsMutex.RLock()
	for conn, c := range h.clients {
		select {
		case c.send <- message:
		default:
			slow = append(slow, conn)
		}
	}
	h.clientsMutex.RUnlock()

	for _, conn := range slow {
		h.unregister(conn)
	}
}

// queue sends a message to one client.
func (h *Hub) queue(c *client, message UpdateMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	if _, ok := h.clients[c.conn]; ok {
		select {
		case c.send <- data:
		default:
		}
	}
}

// readPump consumes browser messages until the connection fails. The client
// never sends anything meaningful; reading keeps control frames flowing.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "Live reload read ended", "remote", c.addr, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast sends message to every connected browser.
func (h *Hub) Broadcast(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal live reload message")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Live reload broadcast queue full, dropping message", "type", message.Type)
	}
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.cancel()

		h.clientsMutex.Lock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn, c := range h.clients {
			delete(h.clients, conn)
			close(c.send)
			conns = append(conns, conn)
		}
		h.clientsMutex.Unlock()

		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.logger.Debug(ctx, "Live reload hub shut down", "clients", len(conns))
	})
	return nil
}
