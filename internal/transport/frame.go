package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Events the transport itself emits.
const (
	// ErrorEvent answers a frame that could not be handled. Sent only to the
	// client that produced the frame.
	ErrorEvent = "error"
	// HeartbeatEvent is pushed periodically by the Monitor.
	HeartbeatEvent = "heartbeat"
)

// Error codes carried by ErrorEvent payloads.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeUnknownEvent    = "UNKNOWN_EVENT"
	CodeAborted         = "ABORTED"
)

var (
	// ErrClientClosed is returned when sending to a client that has gone away.
	ErrClientClosed = errors.New("client connection closed")
	// ErrQueueFull is returned when a client falls too far behind; the client
	// is disconnected.
	ErrQueueFull = errors.New("client send queue full")
	// ErrUnknownEvent is returned by Router.Dispatch for unregistered events.
	ErrUnknownEvent = errors.New("unknown event")
)

// Frame is one message on a connection, in either direction:
//
//	{"event": "line", "payload": {"lineId": "l2"}}
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an ErrorEvent.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// EncodeFrame marshals event and payload into the wire form. A nil payload
// encodes as JSON null so receivers can tell "cleared" from "absent".
func EncodeFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Payload: raw})
}

// Client is one connected display or control surface.
type Client interface {
	// ID uniquely identifies this connection.
	ID() string
	// Host is the stable identifier settings are keyed by. Several
	// connections may share a host.
	Host() string
	// Send queues one frame for this client only.
	Send(event string, payload any) error
}

// SendError sends an ErrorEvent to c, ignoring delivery failures.
func SendError(c Client, code, message, event string) {
	_ = c.Send(ErrorEvent, ErrorPayload{Code: code, Message: message, Event: event})
}

// HandlerFunc processes one inbound frame payload from c.
type HandlerFunc func(ctx context.Context, c Client, payload json.RawMessage) error
