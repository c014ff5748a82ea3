package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Client health states tracked by the Monitor.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ClientHealth tracks the liveness of one connected client.
// Thread-safe: Protected by Monitor's mutex when accessed.
type ClientHealth struct {
	LastCheck        time.Time // Timestamp of the last heartbeat attempt
	LastHealthy      time.Time // Timestamp of the last successful heartbeat
	ClientID         string    // Connection identifier
	Host             string    // Host the client connected from
	Status           string    // "healthy", "unhealthy" or "unknown"
	ConsecutiveFails int       // Number of consecutive failed heartbeats
}

// Monitor periodically sends a heartbeat frame to every connected client.
// Idle display clients never write, so without heartbeats a peer that
// vanished without closing its socket would only be noticed on the next
// broadcast. A heartbeat that finds the client's queue full fails without
// closing the connection; a client whose heartbeat fails maxFailures times
// in a row is reported through the unhealthy callback, which normally
// disconnects it.
// Thread-safe: All methods are safe for concurrent access.
type Monitor struct {
	clients     map[string]*ClientHealth // Current health per client id
	checkFunc   func(c Client) error     // Function to perform one heartbeat
	onUnhealthy func(c Client)           // Callback when a client becomes unhealthy
	logger      *slog.Logger
	ctx         context.Context    // Context for cancellation
	cancel      context.CancelFunc // Cancel function for shutdown
	interval    time.Duration      // How often to send heartbeats
	mu          sync.RWMutex       // Protects clients map
	wg          sync.WaitGroup     // Wait group for graceful shutdown
	maxFailures int                // Failures before marking unhealthy
}

// NewMonitor creates a monitor sending heartbeats every interval. Clients
// are marked unhealthy after 3 consecutive failures.
func NewMonitor(interval time.Duration, logger *slog.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		clients:     make(map[string]*ClientHealth),
		checkFunc:   defaultHeartbeat,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		interval:    interval,
		maxFailures: 3,
	}
}

// SetOnUnhealthy sets the callback invoked when a client becomes unhealthy.
func (m *Monitor) SetOnUnhealthy(callback func(c Client)) {
	m.onUnhealthy = callback
}

// SetCheckFunction overrides the default heartbeat, which sends a
// HeartbeatEvent carrying the current time.
func (m *Monitor) SetCheckFunction(checkFunc func(c Client) error) {
	m.checkFunc = checkFunc
}

// Start runs heartbeat rounds over the clients returned by provider until
// ctx or the monitor is cancelled. It blocks, so run it in a goroutine.
func (m *Monitor) Start(ctx context.Context, provider func() []Client) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}
	if m.checkFunc == nil {
		m.checkFunc = defaultHeartbeat
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("client monitor started", "interval", m.interval)

	m.checkAll(provider())

	for {
		select {
		case <-ticker.C:
			m.checkAll(provider())
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop cancels the monitor and waits for Start to return.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) checkAll(clients []Client) {
	current := make(map[string]bool, len(clients))
	for _, c := range clients {
		current[c.ID()] = true
		m.check(c)
	}

	// Forget clients that have disconnected.
	m.mu.Lock()
	for id := range m.clients {
		if !current[id] {
			delete(m.clients, id)
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) check(c Client) {
	m.mu.Lock()
	health, ok := m.clients[c.ID()]
	if !ok {
		now := time.Now()
		health = &ClientHealth{
			ClientID:    c.ID(),
			Host:        c.Host(),
			Status:      StatusUnknown,
			LastCheck:   now,
			LastHealthy: now,
		}
		m.clients[c.ID()] = health
	}
	m.mu.Unlock()

	err := m.checkFunc(c)

	m.mu.Lock()
	defer m.mu.Unlock()

	health.LastCheck = time.Now()
	if err == nil {
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return
	}

	health.ConsecutiveFails++
	m.logger.Warn("heartbeat failed", "client", c.ID(), "attempt", health.ConsecutiveFails, "max", m.maxFailures, "error", err)
	if health.ConsecutiveFails < m.maxFailures {
		return
	}
	previous := health.Status
	health.Status = StatusUnhealthy
	if previous != StatusUnhealthy && m.onUnhealthy != nil {
		m.logger.Warn("client marked unhealthy", "client", c.ID(), "host", c.Host())
		// Call callback without holding the lock
		go m.onUnhealthy(c)
	}
}

// ClientHealth returns a copy of the health record for a client, or nil.
func (m *Monitor) ClientHealth(id string) *ClientHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, ok := m.clients[id]
	if !ok {
		return nil
	}
	cp := *health
	return &cp
}

// IsHealthy reports whether a client's last heartbeat succeeded.
func (m *Monitor) IsHealthy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, ok := m.clients[id]
	return ok && health.Status == StatusHealthy
}

// heartbeater is implemented by clients that can take a heartbeat without
// being disconnected when their queue is full.
type heartbeater interface {
	heartbeat(payload any) error
}

func defaultHeartbeat(c Client) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if h, ok := c.(heartbeater); ok {
		return h.heartbeat(now)
	}
	return c.Send(HeartbeatEvent, now)
}
