package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
	maxFrame   = 4096
)

// frame is an inbound client message
type frame struct {
	Type string `json:"type"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans transcript events and notifications out to every connected
// websocket client. It implements the notifier and publisher interfaces
// of the domain packages.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

// Option customizes a Hub
type Option func(*Hub)

// WithMetrics records the connection gauge
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithOrigins restricts upgrades to the given origins. "*" allows any.
func WithOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 || lo.Contains(origins, "*") {
			h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(origins, origin)
		}
	}
}

// NewHub creates an empty hub
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logging.Nop(),
		now:     time.Now,
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("ws")
	return h
}

// HandleConnection upgrades the request and serves the client until it
// disconnects
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.register(cl)
	defer h.unregister(cl)

	go h.writePump(cl)

	h.enqueue(cl, gin.H{
		"type":      "system",
		"client_id": cl.id,
		"message":   "connected",
		"time":      h.now(),
	})
	h.readPump(cl)
}

// Publish sends an event to every client
func (h *Hub) Publish(e types.Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	data, err := sonic.Marshal(e)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := lo.Values(h.clients)
	h.mu.RUnlock()

	for _, cl := range clients {
		h.deliver(cl, data)
	}
}

// Notify publishes a notification event
func (h *Hub) Notify(n types.Notification) {
	if n.Time.IsZero() {
		n.Time = h.now()
	}
	h.Publish(types.Event{
		Type:         types.EventNotification,
		SessionID:    n.SessionID,
		Notification: &n,
		Time:         n.Time,
	})
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := lo.Values(h.clients)
	h.mu.Unlock()

	for _, cl := range clients {
		_ = cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = cl.conn.Close()
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl.id] = cl
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	h.logger.Debug("Client connected", zap.String("client_id", cl.id), zap.Int("clients", n))
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.id]
	delete(h.clients, cl.id)
	h.mu.Unlock()

	if !ok {
		return
	}
	cl.close()
	_ = cl.conn.Close()
	h.metrics.DecWSConnections()
	h.logger.Debug("Client disconnected", zap.String("client_id", cl.id))
}

func (h *Hub) readPump(cl *client) {
	cl.conn.SetReadLimit(maxFrame)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client_id", cl.id), zap.Error(err))
			}
			return
		}

		var in frame
		if err := sonic.Unmarshal(data, &in); err != nil {
			h.enqueue(cl, gin.H{"type": "error", "message": "malformed frame", "time": h.now()})
			continue
		}

		switch in.Type {
		case "ping":
			h.enqueue(cl, gin.H{"type": "pong", "time": h.now()})
		default:
			h.enqueue(cl, gin.H{"type": "error", "message": "unknown message type", "time": h.now()})
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = cl.conn.Close()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cl.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) enqueue(cl *client, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	h.deliver(cl, data)
}

// deliver queues a frame. A client too slow to drain its buffer is
// disconnected rather than allowed to block the publisher.
func (h *Hub) deliver(cl *client, data []byte) {
	select {
	case <-cl.done:
	case cl.send <- data:
	default:
		h.logger.Warn("Dropping slow client", zap.String("client_id", cl.id))
		_ = cl.conn.Close()
	}
}
