package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dreamware/lectern/internal/transport"
)

// Event names shared by inbound and outbound frames.
const (
	EventShabad       = "shabad"
	EventBani         = "bani"
	EventLine         = "line"
	EventViewedLines  = "viewedLines"
	EventMainLine     = "mainLine"
	EventClearHistory = "clearHistory"
	EventSettings     = "settings"
	EventStatus       = "status"
	EventHistory      = "history"
)

// ShabadRequest is the payload of an inbound shabad event. Either the id or
// the ordinal selects the shabad; the line fields then select a line inside
// it exactly like a LineRequest.
type ShabadRequest struct {
	ShabadID      string `json:"shabadId,omitempty"`
	ShabadOrderID *int   `json:"shabadOrderId,omitempty"`
	LineID        string `json:"lineId,omitempty"`
	LineOrderID   *int   `json:"lineOrderId,omitempty"`
}

// LineRequest is the payload of an inbound line event. With neither field
// set the current line is cleared.
type LineRequest struct {
	LineID      string `json:"lineId,omitempty"`
	LineOrderID *int   `json:"lineOrderId,omitempty"`
}

// Register binds every client event handled by c onto r.
func (c *Coordinator) Register(r *transport.Router) {
	r.Handle(EventShabad, c.handleShabad)
	r.Handle(EventLine, c.handleLine)
	r.Handle(EventMainLine, c.handleMainLine)
	r.Handle(EventClearHistory, c.handleClearHistory)
	r.Handle(EventBani, c.handleBani)
	r.Handle(EventSettings, c.handleSettings)
}

func (c *Coordinator) handleShabad(ctx context.Context, origin transport.Client, payload json.RawMessage) error {
	var req ShabadRequest
	if err := c.decode(origin, EventShabad, payload, &req); err != nil {
		return err
	}
	return c.SelectShabad(ctx, origin, req)
}

func (c *Coordinator) handleLine(ctx context.Context, origin transport.Client, payload json.RawMessage) error {
	var req LineRequest
	if err := c.decode(origin, EventLine, payload, &req); err != nil {
		return err
	}
	return c.SelectLine(ctx, origin, req)
}

func (c *Coordinator) handleMainLine(ctx context.Context, origin transport.Client, payload json.RawMessage) error {
	var id *string
	if err := c.decode(origin, EventMainLine, payload, &id); err != nil {
		return err
	}
	c.SetHighlightedLine(ctx, id)
	return nil
}

func (c *Coordinator) handleClearHistory(ctx context.Context, _ transport.Client, _ json.RawMessage) error {
	c.ClearHistory(ctx)
	return nil
}

func (c *Coordinator) handleBani(ctx context.Context, origin transport.Client, payload json.RawMessage) error {
	var id string
	if err := c.decode(origin, EventBani, payload, &id); err != nil {
		return err
	}
	return c.SelectBani(ctx, origin, id)
}

func (c *Coordinator) handleSettings(ctx context.Context, origin transport.Client, payload json.RawMessage) error {
	var fragments map[string]any
	if err := c.decode(origin, EventSettings, payload, &fragments); err != nil {
		return err
	}
	return c.ApplySettings(ctx, origin, fragments)
}

// decode unmarshals payload into v. An absent or null payload leaves v at
// its zero value. Undecodable payloads are reported to origin.
func (c *Coordinator) decode(origin transport.Client, event string, payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		c.logger.Warn("invalid payload", "event", event, "host", hostOf(origin), "error", err)
		if origin != nil {
			transport.SendError(origin, transport.CodeInvalidArgument, "invalid payload", event)
		}
		return fmt.Errorf("decode %s payload: %w", event, err)
	}
	return nil
}
