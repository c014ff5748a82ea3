package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/lectern/internal/client"
	"github.com/dreamware/lectern/internal/content"
	"github.com/dreamware/lectern/internal/content/sqlite"
	"github.com/dreamware/lectern/internal/coordinator"
	"github.com/dreamware/lectern/internal/settings"
	"github.com/dreamware/lectern/internal/transport"
)

const catalogYAML = `
shabads:
  - id: s1
    orderId: 1
    lines:
      - {id: a1, orderId: 0, text: "one"}
      - {id: a2, orderId: 1, text: "two"}
      - {id: a3, orderId: 2, text: "three"}
  - id: s2
    orderId: 2
    lines:
      - {id: b1, orderId: 0, text: "four"}
banis:
  - id: japji
    name: Japji Sahib
    lineIds: [a2, b1]
`

// TestSystem is a coordinator wired the way cmd/coordinator wires it,
// served from an httptest server and backed by a SQLite catalog.
type TestSystem struct {
	t     *testing.T
	url   string
	coord *coordinator.Coordinator
	hub   *transport.Hub
}

func NewTestSystem(t *testing.T) *TestSystem {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := content.ParseCatalog(strings.NewReader(catalogYAML))
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.ImportCatalog(ctx, cat))

	global, err := settings.OpenFileGlobal(filepath.Join(t.TempDir(), "global.yaml"))
	require.NoError(t, err)

	router := transport.NewRouter()
	hub := transport.NewHub(router, logger, transport.HubConfig{})
	coord := coordinator.New(store, settings.NewPartition(global), hub, coordinator.Options{
		LookupTimeout: 2 * time.Second,
		Logger:        logger,
	})
	coord.Register(router)
	hub.OnConnect(coord.HandleConnect)
	hub.OnDisconnect(coord.HandleDisconnect)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(coord.Snapshot())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &TestSystem{
		t:     t,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		coord: coord,
		hub:   hub,
	}
}

// Connect dials as host and consumes the initial state push.
func (s *TestSystem) Connect(host string) *client.Client {
	s.t.Helper()
	c, err := client.Dial(context.Background(), s.url, host)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = c.Close() })
	_, err = c.Await(context.Background(), coordinator.EventSettings, 2*time.Second)
	require.NoError(s.t, err)
	return c
}

// Next returns the next non-heartbeat frame.
func Next(t *testing.T, c *client.Client) transport.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		f, err := c.Receive(ctx)
		require.NoError(t, err)
		if f.Event != transport.HeartbeatEvent {
			return f
		}
	}
}

func TestEveryClientSeesTheSameSequence(t *testing.T) {
	sys := NewTestSystem(t)
	remote := sys.Connect("remote")
	projector := sys.Connect("projector")

	require.NoError(t, remote.SelectBani("japji"))
	order := 5
	require.NoError(t, remote.SelectLine(coordinator.LineRequest{LineOrderID: &order}))
	require.NoError(t, remote.SelectShabad(coordinator.ShabadRequest{ShabadID: "s1", LineID: "a3"}))

	want := []string{
		"bani", "line", "viewedLines", "history",
		"line", "viewedLines",
		"shabad", "line", "viewedLines", "history",
	}
	for _, c := range []*client.Client{remote, projector} {
		got := make([]string, 0, len(want))
		var last transport.Frame
		for range want {
			last = Next(t, c)
			got = append(got, last.Event)
		}
		assert.Equal(t, want, got)
		assert.JSONEq(t, `[
			{"line":{"id":"a2","orderId":0,"text":"two","shabadId":"s1"},"transition":true},
			{"line":{"id":"a3","orderId":2,"text":"three"},"transition":true}
		]`, string(last.Payload))
	}

	snap := sys.coord.Snapshot()
	assert.Equal(t, []string{"a3"}, snap.ViewedLines)
	assert.Equal(t, 2, snap.Clients)
}

func TestLateJoinerGetsFullState(t *testing.T) {
	sys := NewTestSystem(t)
	remote := sys.Connect("remote")

	require.NoError(t, remote.SelectShabad(coordinator.ShabadRequest{ShabadID: "s1", LineID: "a1"}))
	require.NoError(t, remote.SelectLine(coordinator.LineRequest{LineID: "a2"}))
	main := "a1"
	require.NoError(t, remote.SetMainLine(&main))
	_, err := remote.Await(context.Background(), coordinator.EventMainLine, 2*time.Second)
	require.NoError(t, err)

	late, err := client.Dial(context.Background(), sys.url, "late")
	require.NoError(t, err)
	defer late.Close()

	wantEvents := []string{"shabad", "line", "viewedLines", "mainLine", "status", "history", "settings"}
	frames := make(map[string]string)
	for _, e := range wantEvents {
		f := Next(t, late)
		require.Equal(t, e, f.Event)
		frames[e] = string(f.Payload)
	}
	assert.JSONEq(t, `"a2"`, frames["line"])
	assert.JSONEq(t, `["a1","a2"]`, frames["viewedLines"])
	assert.JSONEq(t, `"a1"`, frames["mainLine"])
	assert.JSONEq(t, `null`, frames["status"])
	assert.JSONEq(t, `{"local":{},"global":{}}`, frames["settings"])
}

func TestSettingsPartitionAcrossClients(t *testing.T) {
	sys := NewTestSystem(t)
	console := sys.Connect("console")
	projector := sys.Connect("projector")

	require.NoError(t, projector.ApplySettings(map[string]any{
		"local": map[string]any{
			"fontSize": 48,
			"security": map[string]any{"options": map[string]any{"private": true}},
		},
	}))
	require.NoError(t, console.ApplySettings(map[string]any{
		"local":  map[string]any{"theme": "dark"},
		"global": map[string]any{"language": "pa"},
	}))

	// Two settings events, so each client receives two views; the second
	// reflects both.
	var consoleView, projectorView map[string]any
	for i := 0; i < 2; i++ {
		require.NoError(t, json.Unmarshal(awaitPayload(t, console, coordinator.EventSettings), &consoleView))
		require.NoError(t, json.Unmarshal(awaitPayload(t, projector, coordinator.EventSettings), &projectorView))
	}

	assert.NotContains(t, consoleView, "projector", "private host is redacted")
	assert.NotContains(t, consoleView, "console", "own key only under local")
	assert.Equal(t, map[string]any{"theme": "dark"}, consoleView["local"])
	assert.Equal(t, map[string]any{"language": "pa"}, consoleView["global"])

	assert.Equal(t, map[string]any{"theme": "dark"}, projectorView["console"])
	assert.Equal(t, 48.0, projectorView["local"].(map[string]any)["fontSize"])
	assert.NotContains(t, projectorView, "projector")

	assert.Contains(t, sys.coord.Snapshot().Settings, "console")
	assert.NotContains(t, sys.coord.Snapshot().Settings, "projector")

	require.NoError(t, console.Close())
	require.Eventually(t, func() bool {
		_, ok := sys.coord.Snapshot().Settings["console"]
		return !ok && len(sys.hub.Clients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectedEventsOnlyReachOrigin(t *testing.T) {
	sys := NewTestSystem(t)
	remote := sys.Connect("remote")
	projector := sys.Connect("projector")

	require.NoError(t, remote.SelectBani("missing"))
	f := Next(t, remote)
	require.Equal(t, transport.ErrorEvent, f.Event)
	var payload transport.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, transport.CodeNotFound, payload.Code)

	// The projector's next frame is the broadcast from a later valid event,
	// proving it never saw the error.
	require.NoError(t, remote.SelectBani("japji"))
	assert.Equal(t, coordinator.EventBani, Next(t, projector).Event)
}

func awaitPayload(t *testing.T, c *client.Client, event string) []byte {
	t.Helper()
	f, err := c.Await(context.Background(), event, 2*time.Second)
	require.NoError(t, err)
	return f.Payload
}
