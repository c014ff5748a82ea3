package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const (
	defaultQueueSize     = 64
	defaultMaxFrameBytes = 64 * 1024
	defaultWriteTimeout  = 10 * time.Second

	maxDecodeErrorsPerConn = 3
)

// LifecycleFunc is called when a client connects or disconnects.
type LifecycleFunc func(ctx context.Context, c Client)

// HubConfig tunes a Hub. Zero values select defaults.
type HubConfig struct {
	QueueSize     int           // outbound frames buffered per client
	MaxFrameBytes int           // largest inbound frame accepted
	WriteTimeout  time.Duration // deadline for one outbound write
}

// Hub accepts WebSocket connections and fans frames out to them.
//
// Every connection gets a writer goroutine draining a buffered queue, so
// Broadcast and Send never block on a slow socket. A client whose queue
// fills up is disconnected rather than allowed to stall everyone else.
//
// Frame order is preserved per client: frames queued by successive Broadcast
// or Send calls are written in call order.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*conn // client id -> connection
	order   []string         // client ids in connect order

	router       *Router
	logger       *slog.Logger
	cfg          HubConfig
	onConnect    LifecycleFunc
	onDisconnect LifecycleFunc
}

// NewHub creates a hub dispatching inbound frames through router.
func NewHub(router *Router, logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		clients: make(map[string]*conn),
		router:  router,
		logger:  logger,
		cfg:     cfg,
	}
}

// OnConnect sets the callback run after a client is registered and before
// any of its frames are read.
func (h *Hub) OnConnect(fn LifecycleFunc) {
	h.onConnect = fn
}

// OnDisconnect sets the callback run after a client is unregistered.
func (h *Hub) OnDisconnect(fn LifecycleFunc) {
	h.onDisconnect = fn
}

// ServeHTTP upgrades the request to a WebSocket connection.
//
// The client's host id is taken from the "host" query parameter when
// present, otherwise from the remote IP address.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	srv := websocket.Server{
		// No authentication: any origin may connect.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serveConn,
	}
	srv.ServeHTTP(w, r)
}

// Broadcast queues one frame for every connected client.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := EncodeFrame(event, payload)
	if err != nil {
		h.logger.Error("broadcast encode failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.order))
	for _, id := range h.order {
		targets = append(targets, h.clients[id])
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.enqueue(msg); err != nil && !errors.Is(err, ErrClientClosed) {
			h.logger.Warn("broadcast dropped", "event", event, "client", c.id, "error", err)
		}
	}
}

// Clients returns the connected clients in connect order.
func (h *Hub) Clients() []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Client, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.clients[id])
	}
	return out
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Disconnect closes the client with the given id. No error if absent.
func (h *Hub) Disconnect(id string) {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c != nil {
		c.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.Clients() {
		c.(*conn).Close()
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.order = append(h.order, c.id)
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	for i, id := range h.order {
		if id == c.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *Hub) serveConn(ws *websocket.Conn) {
	ws.MaxPayloadBytes = h.cfg.MaxFrameBytes
	r := ws.Request()
	ctx := r.Context()

	c := &conn{
		id:      uuid.NewString(),
		host:    hostID(r),
		ws:      ws,
		send:    make(chan []byte, h.cfg.QueueSize),
		closed:  make(chan struct{}),
		timeout: h.cfg.WriteTimeout,
		logger:  h.logger,
	}
	logger := h.logger.With("client", c.id, "host", c.host)

	h.register(c)
	logger.Info("client connected", "clients", h.Len())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	if h.onConnect != nil {
		h.onConnect(ctx, c)
	}

	h.readLoop(ctx, c, logger)

	h.unregister(c)
	c.Close()
	<-writerDone
	if h.onDisconnect != nil {
		h.onDisconnect(ctx, c)
	}
	logger.Info("client disconnected", "clients", h.Len())
}

func (h *Hub) readLoop(ctx context.Context, c *conn, logger *slog.Logger) {
	decodeErrors := 0
	for {
		var raw []byte
		if err := websocket.Message.Receive(c.ws, &raw); err != nil {
			switch {
			case errors.Is(err, io.EOF), c.isClosed():
			case errors.Is(err, websocket.ErrFrameTooLarge):
				logger.Warn("frame too large", "limit", h.cfg.MaxFrameBytes)
				SendError(c, CodeInvalidArgument, "frame too large", "")
				continue
			default:
				logger.Debug("read failed", "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || strings.TrimSpace(f.Event) == "" {
			decodeErrors++
			logger.Warn("invalid frame", "error", err, "attempt", decodeErrors)
			SendError(c, CodeInvalidArgument, "invalid frame", "")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if err := h.router.Dispatch(ctx, c, f); err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				logger.Warn("unknown event", "event", f.Event)
				SendError(c, CodeUnknownEvent, "unsupported event", f.Event)
				continue
			}
			logger.Debug("handler failed", "event", f.Event, "error", err)
		}
	}
}

// hostID derives the stable host identifier for a request.
func hostID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if host := strings.TrimSpace(r.URL.Query().Get("host")); host != "" {
		return host
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// conn is the Client implementation for one WebSocket connection.
type conn struct {
	id      string
	host    string
	ws      *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	timeout time.Duration
	logger  *slog.Logger
}

func (c *conn) ID() string   { return c.id }
func (c *conn) Host() string { return c.host }

// Send queues one frame for this client.
func (c *conn) Send(event string, payload any) error {
	msg, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

// heartbeat queues a heartbeat frame. Unlike Send, a full queue leaves the
// connection open; the Monitor counts the failure and decides.
func (c *conn) heartbeat(payload any) error {
	msg, err := EncodeFrame(HeartbeatEvent, payload)
	if err != nil {
		return err
	}
	return c.offer(msg)
}

func (c *conn) enqueue(msg []byte) error {
	err := c.offer(msg)
	if errors.Is(err, ErrQueueFull) {
		c.logger.Warn("client send queue full, disconnecting", "client", c.id)
		c.Close()
	}
	return err
}

// offer queues msg without blocking.
func (c *conn) offer(msg []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		return ErrQueueFull
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
			if err := websocket.Message.Send(c.ws, string(msg)); err != nil {
				c.logger.Debug("write failed", "client", c.id, "error", err)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
