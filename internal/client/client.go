// Package client talks to a running coordinator: a WebSocket session for
// sending navigation events and receiving broadcasts, and HTTP helpers for
// the operator endpoints.
//
// Usage:
//
//	c, err := client.Dial(ctx, "ws://localhost:8080/ws", "remote-1")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.SelectBani("japji")
//	for {
//	    f, err := c.Receive(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(f.Event, string(f.Payload))
//	}
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/dreamware/lectern/internal/coordinator"
	"github.com/dreamware/lectern/internal/transport"
)

// Client is one WebSocket session with the coordinator. Send methods are
// safe for concurrent use; Receive must be called from one goroutine.
type Client struct {
	ws   *websocket.Conn
	host string
	mu   sync.Mutex // serializes writes
}

// Dial opens a session at wsURL. A non-empty host is sent as the "host"
// query parameter so the coordinator keys this client's settings by it.
func Dial(ctx context.Context, wsURL, host string) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if host != "" {
		q := u.Query()
		q.Set("host", host)
		u.RawQuery = q.Encode()
	}

	origin, err := HTTPBase(wsURL)
	if err != nil {
		return nil, err
	}
	cfg, err := websocket.NewConfig(u.String(), origin+"/")
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Client{ws: ws, host: host}, nil
}

// Host returns the host id this client connected with.
func (c *Client) Host() string {
	return c.host
}

// Send writes one frame.
func (c *Client) Send(event string, payload any) error {
	msg, err := transport.EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := websocket.Message.Send(c.ws, string(msg)); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// SelectShabad asks the coordinator to make a shabad active.
func (c *Client) SelectShabad(req coordinator.ShabadRequest) error {
	return c.Send(coordinator.EventShabad, req)
}

// SelectLine moves within the active content.
func (c *Client) SelectLine(req coordinator.LineRequest) error {
	return c.Send(coordinator.EventLine, req)
}

// SetMainLine sets the highlighted line; nil clears it.
func (c *Client) SetMainLine(id *string) error {
	return c.Send(coordinator.EventMainLine, id)
}

// SelectBani asks the coordinator to make a bani active.
func (c *Client) SelectBani(id string) error {
	return c.Send(coordinator.EventBani, id)
}

// ClearHistory empties the shared history.
func (c *Client) ClearHistory() error {
	return c.Send(coordinator.EventClearHistory, nil)
}

// ApplySettings sends a settings event. Use the "local" and "global" keys
// for this host's and the shared settings; any other key names a host.
func (c *Client) ApplySettings(fragments map[string]any) error {
	return c.Send(coordinator.EventSettings, fragments)
}

// Receive reads the next frame. It returns ctx.Err() when ctx ends first.
func (c *Client) Receive(ctx context.Context) (transport.Frame, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return transport.Frame{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	var raw []byte
	if err := websocket.Message.Receive(c.ws, &raw); err != nil {
		if ctx.Err() != nil {
			return transport.Frame{}, ctx.Err()
		}
		return transport.Frame{}, fmt.Errorf("receive: %w", err)
	}

	var f transport.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return transport.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// ErrTimeout is returned by Await when no matching frame arrives in time.
var ErrTimeout = errors.New("timed out waiting for event")

// Await reads frames until one named event arrives, discarding the others.
func (c *Client) Await(ctx context.Context, event string, timeout time.Duration) (transport.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		f, err := c.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return transport.Frame{}, fmt.Errorf("%w: %s", ErrTimeout, event)
			}
			return transport.Frame{}, err
		}
		if f.Event == event {
			return f, nil
		}
	}
}

// Close ends the session.
func (c *Client) Close() error {
	return c.ws.Close()
}
