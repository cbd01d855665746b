package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Broadcaster fans messages out to every connected WebSocket client. Each
// client has its own send queue; a client that cannot keep up is
// disconnected instead of slowing the others down.
type Broadcaster struct {
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	broadcast  chan WSMessage
	register   chan *client
	unregister chan *websocket.Conn

	upgrader       websocket.Upgrader
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendBuffer     int

	// onConnect builds the first message for a new client.
	onConnect func() WSMessage
	done      chan struct{}

	dropped atomic.Int64
	logger  *zap.Logger
}

type client struct {
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time
	send        chan []byte
}

// BroadcasterConfig holds configuration for the Broadcaster.
type BroadcasterConfig struct {
	// PingInterval is how often to ping clients (default: 30s)
	PingInterval time.Duration
	// PongWait is how long to wait for a pong (default: 60s)
	PongWait time.Duration
	// WriteWait is the time allowed to write a message (default: 10s)
	WriteWait time.Duration
	// MaxMessageSize is the largest client message accepted (default: 512)
	MaxMessageSize int64
	// BroadcastBufferSize is the broadcast queue length (default: 256)
	BroadcastBufferSize int
	// ClientSendBufferSize is the per-client queue length (default: 64)
	ClientSendBufferSize int
	Logger               *zap.Logger
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 64,
	}
}

// NewBroadcaster creates a broadcaster. Zero config fields take defaults.
// Call Start before clients connect.
func NewBroadcaster(config BroadcasterConfig) *Broadcaster {
	def := DefaultBroadcasterConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = def.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = def.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = def.BroadcastBufferSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = def.ClientSendBufferSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Broadcaster{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan WSMessage, config.BroadcastBufferSize),
		register:       make(chan *client),
		unregister:     make(chan *websocket.Conn),
		pingInterval:   config.PingInterval,
		pongWait:       config.PongWait,
		writeWait:      config.WriteWait,
		maxMessageSize: config.MaxMessageSize,
		sendBuffer:     config.ClientSendBufferSize,
		done:           make(chan struct{}),
		logger:         config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The live view is served from the same origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// OnConnect sets the function producing the initial message for each new
// client. Must be called before Start.
func (b *Broadcaster) OnConnect(fn func() WSMessage) {
	b.onConnect = fn
}

// Start runs the hub until ctx is cancelled, then disconnects all clients.
// It must be called at most once.
func (b *Broadcaster) Start(ctx context.Context) {
	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()
	defer close(b.done)

	b.logger.Debug("broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.closeAllClients()
			b.logger.Debug("broadcaster stopped")
			return
		case c := <-b.register:
			b.addClient(c)
		case conn := <-b.unregister:
			b.removeClient(conn)
		case msg := <-b.broadcast:
			b.broadcastToAll(msg)
		case <-pingTicker.C:
			b.pingAll()
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (b *Broadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})

	c := &client{
		conn:        conn,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		send:        make(chan []byte, b.sendBuffer),
	}
	if b.onConnect != nil {
		if data, err := json.Marshal(b.onConnect()); err == nil {
			c.send <- data
		}
	}

	select {
	case b.register <- c:
	case <-b.done:
		conn.Close()
		return
	}
	go b.readPump(conn)
}

// BroadcastMessage queues msg for all clients without blocking. When the
// queue is full the message is dropped.
func (b *Broadcaster) BroadcastMessage(msg WSMessage) bool {
	select {
	case b.broadcast <- msg:
		return true
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.logger.Warn("broadcast queue full, dropping message",
				zap.String("type", msg.Type), zap.Int64("dropped", n))
		}
		return false
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Dropped returns the number of messages dropped because the queue was full.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

func (b *Broadcaster) addClient(c *client) {
	b.clientsMu.Lock()
	b.clients[c.conn] = c
	total := len(b.clients)
	b.clientsMu.Unlock()

	go b.writePump(c)
	b.logger.Info("live view client connected",
		zap.String("remote_addr", c.remoteAddr), zap.Int("clients", total))
}

func (b *Broadcaster) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	c, ok := b.clients[conn]
	if ok {
		delete(b.clients, conn)
		close(c.send)
	}
	total := len(b.clients)
	b.clientsMu.Unlock()

	if ok {
		b.logger.Info("live view client disconnected",
			zap.String("remote_addr", c.remoteAddr),
			zap.Duration("connected", time.Since(c.connectedAt)),
			zap.Int("clients", total))
	}
}

func (b *Broadcaster) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal broadcast message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	var slow []*websocket.Conn
	b.clientsMu.RLock()
	for conn, c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	b.clientsMu.RUnlock()

	for _, conn := range slow {
		b.logger.Warn("live view client too slow, disconnecting",
			zap.String("remote_addr", conn.RemoteAddr().String()))
		b.removeClient(conn)
	}
}

func (b *Broadcaster) pingAll() {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	deadline := time.Now().Add(b.writeWait)
	for conn, c := range b.clients {
		// WriteControl may be called concurrently with the write pump.
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			b.logger.Debug("ping failed", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
		}
	}
}

func (b *Broadcaster) closeAllClients() {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for conn, c := range b.clients {
		close(c.send)
		delete(b.clients, conn)
	}
}

// readPump discards client messages and unregisters the client once the
// connection fails or closes.
func (b *Broadcaster) readPump(conn *websocket.Conn) {
	defer func() {
		select {
		case b.unregister <- conn:
		case <-b.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all data writes to conn and closes it when send closes.
func (b *Broadcaster) writePump(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug("websocket write failed", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
			// Closing conn fails the read pump, which unregisters the
			// client and closes send.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}
