package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/lectern/internal/content"
	"github.com/dreamware/lectern/internal/history"
	"github.com/dreamware/lectern/internal/settings"
	"github.com/dreamware/lectern/internal/transport"
)

const (
	defaultLookupTimeout = 5 * time.Second
	defaultHistoryLimit  = 1000
)

var (
	// ErrNoActiveContent is returned when a line is selected by id or
	// ordinal before any shabad or bani has been selected.
	ErrNoActiveContent = errors.New("no active content")

	// ErrUnknownLine is returned when an explicit line id is not part of
	// the content it would be selected in.
	ErrUnknownLine = errors.New("line not in active content")

	// ErrNoSelector is returned when a content selection names neither an
	// id nor an ordinal.
	ErrNoSelector = errors.New("no content selector")

	// ErrSuperseded is returned by a selection whose lookup finished after a
	// newer selection had already been applied. Its result is discarded.
	ErrSuperseded = errors.New("selection superseded by a newer request")
)

// Broadcaster is the part of the transport the coordinator publishes to.
// *transport.Hub satisfies it.
type Broadcaster interface {
	// Broadcast queues one frame for every connected client.
	Broadcast(event string, payload any)
	// Clients returns the connected clients.
	Clients() []transport.Client
}

// Options tunes a Coordinator. Zero values select defaults.
type Options struct {
	// LookupTimeout bounds every repository lookup. Default 5s.
	LookupTimeout time.Duration
	// HistoryLimit caps the history log. Zero selects 1000, negative means
	// unbounded.
	HistoryLimit int
	// Logger receives operator-visible failures. Default discards.
	Logger *slog.Logger
}

// Coordinator owns the shared session and applies client events to it.
//
// Every handler runs under one session lock, and every broadcast a handler
// makes is issued while that lock is held, so clients observe broadcasts in
// handler execution order. The lock is released only across repository
// lookups. A selection whose lookup resolves after a newer selection was
// applied is discarded, so the most recently started successful selection
// wins. Failed selections never displace another one.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Coordinator struct {
	repo          content.Repository
	settings      *settings.Partition
	out           Broadcaster
	logger        *slog.Logger
	lookupTimeout time.Duration

	mu          sync.Mutex
	shabad      *content.Shabad
	bani        *content.Bani
	lineID      *string
	viewed      []string // visit order, no duplicates
	viewedSet   map[string]struct{}
	highlighted *string
	status      *string
	history     *history.Log
	ticket      uint64 // incremented by every content selection
	applied     uint64 // ticket of the selection the session shows
}

// New creates a coordinator with an empty session.
func New(repo content.Repository, partition *settings.Partition, out Broadcaster, opts Options) *Coordinator {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	switch {
	case opts.HistoryLimit == 0:
		opts.HistoryLimit = defaultHistoryLimit
	case opts.HistoryLimit < 0:
		opts.HistoryLimit = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if partition == nil {
		partition = settings.NewPartition(nil)
	}
	return &Coordinator{
		repo:          repo,
		settings:      partition,
		out:           out,
		logger:        opts.Logger,
		lookupTimeout: opts.LookupTimeout,
		viewedSet:     make(map[string]struct{}),
		history:       history.New(opts.HistoryLimit),
	}
}

// SelectShabad makes a shabad the active content.
//
// The shabad is fetched by ordinal when req.ShabadOrderID is set, clamping
// it into the repository range first, and by id otherwise. On success the
// viewed lines and highlighted line are cleared, the shabad is broadcast,
// the line named by req is selected as a content change, and the
// transitions-only history is rebroadcast.
//
// A failed lookup, or an explicit line id missing from the fetched shabad,
// leaves the session untouched and is reported to origin only.
func (c *Coordinator) SelectShabad(ctx context.Context, origin transport.Client, req ShabadRequest) error {
	ticket := c.begin()

	shabad, err := c.lookupShabad(ctx, req)
	var line *content.Line
	if err == nil {
		line, err = resolveLine(shabad.Lines, LineRequest{LineID: req.LineID, LineOrderID: req.LineOrderID})
	}
	if err != nil {
		c.reject(origin, EventShabad, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket < c.applied {
		c.reject(origin, EventShabad, ErrSuperseded)
		return ErrSuperseded
	}
	c.applied = ticket

	c.shabad = &shabad
	c.bani = nil
	c.resetNavigationLocked()
	c.out.Broadcast(EventShabad, shabad)
	c.applyLineLocked(line, history.ContentChange)
	c.out.Broadcast(EventHistory, c.history.TransitionsOnly())

	c.logger.Debug("shabad selected", "shabad", shabad.ID, "host", hostOf(origin))
	return nil
}

// SelectBani makes a bani the active content and selects its first line as
// a content change. Failure handling matches SelectShabad.
func (c *Coordinator) SelectBani(ctx context.Context, origin transport.Client, id string) error {
	ticket := c.begin()

	var (
		lines []content.Line
		err   error
	)
	if strings.TrimSpace(id) == "" {
		err = ErrNoSelector
	} else {
		lines, err = c.lookupBani(ctx, id)
	}
	if err != nil {
		c.reject(origin, EventBani, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket < c.applied {
		c.reject(origin, EventBani, ErrSuperseded)
		return ErrSuperseded
	}
	c.applied = ticket

	bani := content.Bani{ID: id, Lines: lines}
	c.bani = &bani
	c.shabad = nil
	c.resetNavigationLocked()
	c.out.Broadcast(EventBani, bani)

	var first *content.Line
	if len(lines) > 0 {
		l := lines[0]
		first = &l
	}
	c.applyLineLocked(first, history.ContentChange)
	c.out.Broadcast(EventHistory, c.history.TransitionsOnly())

	c.logger.Debug("bani selected", "bani", id, "host", hostOf(origin))
	return nil
}

// SelectLine moves within the active content.
//
// The target is req.LineID when set, else the line at req.LineOrderID clamped
// into the content's ordinal range, else none. A resolved line joins the
// viewed set. The line and viewed set are broadcast and a history entry is
// appended; clearing the line counts as a content change.
func (c *Coordinator) SelectLine(_ context.Context, origin transport.Client, req LineRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectLineLocked(req, history.InContentMove); err != nil {
		c.reject(origin, EventLine, err)
		return err
	}
	return nil
}

// SetHighlightedLine sets or clears the highlighted line and broadcasts it.
// The id is not checked against the active content and history is not
// touched.
func (c *Coordinator) SetHighlightedLine(_ context.Context, id *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.highlighted = cloneString(id)
	c.out.Broadcast(EventMainLine, c.highlighted)
}

// ClearHistory empties the history log and broadcasts the empty view.
func (c *Coordinator) ClearHistory(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.Reset()
	c.out.Broadcast(EventHistory, c.history.TransitionsOnly())
}

// SetStatus sets or clears the backend status and broadcasts it.
func (c *Coordinator) SetStatus(_ context.Context, status *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = cloneString(status)
	c.out.Broadcast(EventStatus, c.status)
}

// ApplySettings merges a settings event from origin.
//
// Payload keys:
//
//	local   merged into origin's host entry
//	global  merged into the shared global configuration
//	<host>  merged into that host's entry
//
// Values that are not objects are ignored. Afterwards every connected client
// is sent its own view of the partition (see settings.Partition.ViewFor).
// A global store failure is reported to origin; host entries are still
// merged and views still sent.
func (c *Coordinator) ApplySettings(_ context.Context, origin transport.Client, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var globalErr error
	if global, ok := payload[settings.GlobalKey].(map[string]any); ok {
		if err := c.settings.MergeGlobal(global); err != nil {
			globalErr = fmt.Errorf("merge global settings: %w", err)
			c.logger.Warn("global settings not saved", "host", hostOf(origin), "error", err)
			if origin != nil {
				transport.SendError(origin, transport.CodeUnavailable, "global settings not saved", EventSettings)
			}
		}
	}

	if origin != nil {
		local, _ := payload[settings.LocalKey].(map[string]any)
		c.settings.Merge(origin.Host(), local)
	}

	for key, value := range payload {
		if key == settings.LocalKey || key == settings.GlobalKey {
			continue
		}
		fragment, ok := value.(map[string]any)
		if !ok {
			c.logger.Debug("ignoring non-object settings fragment", "key", key)
			continue
		}
		c.settings.Merge(key, fragment)
	}

	c.sendSettingsLocked()
	return globalErr
}

// HandleConnect pushes the whole session to a newly connected client only.
// Frames are sent in a fixed order: content (bani before shabad), line,
// viewedLines, mainLine, status, history, settings.
func (c *Coordinator) HandleConnect(_ context.Context, client transport.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	send := func(event string, payload any) {
		if err := client.Send(event, payload); err != nil {
			c.logger.Debug("initial state not delivered", "client", client.ID(), "event", event, "error", err)
		}
	}

	switch {
	case c.bani != nil:
		send(EventBani, *c.bani)
	case c.shabad != nil:
		send(EventShabad, *c.shabad)
	}
	send(EventLine, c.lineID)
	send(EventViewedLines, c.viewedLocked())
	send(EventMainLine, c.highlighted)
	send(EventStatus, c.status)
	send(EventHistory, c.history.TransitionsOnly())
	send(EventSettings, c.settings.ViewFor(client.Host()))
}

// HandleDisconnect drops the settings entry of the client's host. Nothing
// is broadcast.
func (c *Coordinator) HandleDisconnect(_ context.Context, client transport.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.Remove(client.Host())
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	Shabad      *content.Shabad `json:"shabad,omitempty"`
	Bani        *content.Bani   `json:"bani,omitempty"`
	LineID      *string         `json:"line"`
	ViewedLines []string        `json:"viewedLines"`
	MainLineID  *string         `json:"mainLine"`
	Status      *string         `json:"status"`
	History     []history.Entry `json:"history"`
	HistoryLen  int             `json:"historyLength"`
	Settings    map[string]any  `json:"settings"`
	Global      map[string]any  `json:"global"`
	Clients     int             `json:"clients"`
}

// Snapshot returns a copy of the current session. Settings holds the public
// view only; private hosts are omitted.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		LineID:      cloneString(c.lineID),
		ViewedLines: c.viewedLocked(),
		MainLineID:  cloneString(c.highlighted),
		Status:      cloneString(c.status),
		History:     c.history.TransitionsOnly(),
		HistoryLen:  c.history.Len(),
		Settings:    c.settings.PublicView(),
		Global:      c.settings.Global(),
		Clients:     len(c.out.Clients()),
	}
	if c.shabad != nil {
		s := c.shabad.Clone()
		snap.Shabad = &s
	}
	if c.bani != nil {
		b := c.bani.Clone()
		snap.Bani = &b
	}
	return snap
}

// begin takes a selection ticket. A selection whose ticket is older than the
// applied one when its lookup resolves is discarded.
func (c *Coordinator) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticket++
	return c.ticket
}

func (c *Coordinator) lookupShabad(ctx context.Context, req ShabadRequest) (content.Shabad, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	switch {
	case req.ShabadOrderID != nil:
		lo, hi, err := c.repo.ShabadOrderRange(ctx)
		if err != nil {
			return content.Shabad{}, fmt.Errorf("shabad order range: %w", err)
		}
		order := content.Clamp(*req.ShabadOrderID, lo, hi)
		shabad, err := c.repo.ShabadByOrderID(ctx, order)
		if err != nil {
			return content.Shabad{}, fmt.Errorf("shabad at order %d: %w", order, err)
		}
		return shabad, nil
	case req.ShabadID != "":
		shabad, err := c.repo.ShabadByID(ctx, req.ShabadID)
		if err != nil {
			return content.Shabad{}, fmt.Errorf("shabad %q: %w", req.ShabadID, err)
		}
		return shabad, nil
	default:
		return content.Shabad{}, ErrNoSelector
	}
}

func (c *Coordinator) lookupBani(ctx context.Context, id string) ([]content.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	lines, err := c.repo.BaniLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bani %q: %w", id, err)
	}
	return lines, nil
}

// selectLineLocked resolves and applies a line selection. kind is the
// caller's hint; a cleared line is always a content change.
func (c *Coordinator) selectLineLocked(req LineRequest, kind history.Kind) error {
	line, err := c.resolveLineLocked(req)
	if err != nil {
		return err
	}
	c.applyLineLocked(line, kind)
	return nil
}

// applyLineLocked makes line current, or clears it when nil, and broadcasts
// the result.
func (c *Coordinator) applyLineLocked(line *content.Line, kind history.Kind) {
	if line == nil {
		c.lineID = nil
		kind = history.ContentChange
	} else {
		id := line.ID
		c.lineID = &id
		if _, seen := c.viewedSet[id]; !seen {
			c.viewedSet[id] = struct{}{}
			c.viewed = append(c.viewed, id)
		}
	}

	c.out.Broadcast(EventLine, c.lineID)
	c.out.Broadcast(EventViewedLines, c.viewedLocked())
	c.history.Append(line, kind)
}

func (c *Coordinator) resolveLineLocked(req LineRequest) (*content.Line, error) {
	if req.LineID == "" && req.LineOrderID == nil {
		return nil, nil
	}

	lines, ok := c.activeLinesLocked()
	if !ok {
		return nil, ErrNoActiveContent
	}
	return resolveLine(lines, req)
}

// resolveLine picks the line req names within lines: by id when set, else by
// ordinal clamped into the range of lines. Neither selects none.
func resolveLine(lines []content.Line, req LineRequest) (*content.Line, error) {
	if req.LineID == "" && req.LineOrderID == nil {
		return nil, nil
	}

	if req.LineID != "" {
		line, ok := content.FindLine(lines, req.LineID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLine, req.LineID)
		}
		return &line, nil
	}

	lo, hi, ok := content.OrderRange(lines)
	if !ok {
		return nil, nil
	}
	order := content.Clamp(*req.LineOrderID, lo, hi)
	if line, ok := content.LineAtOrder(lines, order); ok {
		return &line, nil
	}
	// Gaps in the ordinals: take the next line after the requested one.
	for _, l := range lines {
		if l.OrderID > order {
			line := l
			return &line, nil
		}
	}
	return nil, nil
}

func (c *Coordinator) activeLinesLocked() ([]content.Line, bool) {
	switch {
	case c.bani != nil:
		return c.bani.Lines, true
	case c.shabad != nil:
		return c.shabad.Lines, true
	default:
		return nil, false
	}
}

func (c *Coordinator) resetNavigationLocked() {
	c.viewed = nil
	c.viewedSet = make(map[string]struct{})
	c.highlighted = nil
}

func (c *Coordinator) viewedLocked() []string {
	out := make([]string, len(c.viewed))
	copy(out, c.viewed)
	return out
}

func (c *Coordinator) sendSettingsLocked() {
	for _, client := range c.out.Clients() {
		if err := client.Send(EventSettings, c.settings.ViewFor(client.Host())); err != nil {
			c.logger.Debug("settings not delivered", "client", client.ID(), "error", err)
		}
	}
}

// reject logs a failed handler and tells origin why. Nothing is broadcast.
func (c *Coordinator) reject(origin transport.Client, event string, err error) {
	c.logger.Warn("event rejected", "event", event, "host", hostOf(origin), "error", err)
	if origin == nil {
		return
	}
	transport.SendError(origin, errorCode(err), err.Error(), event)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrEmptyCatalog):
		return transport.CodeNotFound
	case errors.Is(err, ErrUnknownLine), errors.Is(err, ErrNoActiveContent), errors.Is(err, ErrNoSelector):
		return transport.CodeInvalidArgument
	case errors.Is(err, ErrSuperseded):
		return transport.CodeAborted
	default:
		return transport.CodeUnavailable
	}
}

func hostOf(c transport.Client) string {
	if c == nil {
		return ""
	}
	return c.Host()
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
