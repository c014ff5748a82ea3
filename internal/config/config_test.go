package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCoordinatorDefaults(t *testing.T) {
	cfg, err := LoadCoordinator()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "content.yaml", cfg.ContentFile)
	assert.Empty(t, cfg.ContentDB)
	assert.Empty(t, cfg.GlobalSettingsFile)
	assert.Equal(t, 5*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 1000, cfg.HistoryLimit)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 65536, cfg.MaxFrameBytes)
	assert.Equal(t, Log{Level: "info", Format: FormatAuto}, cfg.Log)
}

func TestLoadCoordinatorFromEnv(t *testing.T) {
	t.Setenv("LECTERN_ADDR", "127.0.0.1:9000")
	t.Setenv("LECTERN_CONTENT_DB", "/tmp/content.db")
	t.Setenv("LECTERN_LOOKUP_TIMEOUT", "250ms")
	t.Setenv("LECTERN_HISTORY_LIMIT", "0")
	t.Setenv("LECTERN_LOG_LEVEL", "debug")
	t.Setenv("LECTERN_LOG_FORMAT", "json")

	cfg, err := LoadCoordinator()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "/tmp/content.db", cfg.ContentDB)
	assert.Equal(t, 250*time.Millisecond, cfg.LookupTimeout)
	assert.Zero(t, cfg.HistoryLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("LECTERN_HISTORY_LIMIT", "lots")

	_, err := LoadCoordinator()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"), err.Error())
}

func TestCoordinatorValidate(t *testing.T) {
	base, err := LoadCoordinator()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Coordinator)
		want   string
	}{
		{"empty addr", func(c *Coordinator) { c.Addr = " " }, "addr is required"},
		{"no content", func(c *Coordinator) { c.ContentFile = "" }, "content file or content db"},
		{"zero timeout", func(c *Coordinator) { c.LookupTimeout = 0 }, "lookup timeout"},
		{"negative history", func(c *Coordinator) { c.HistoryLimit = -1 }, "history limit"},
		{"zero heartbeat", func(c *Coordinator) { c.HeartbeatInterval = 0 }, "heartbeat interval"},
		{"tiny frames", func(c *Coordinator) { c.MaxFrameBytes = 10 }, "max frame bytes"},
		{"bad level", func(c *Coordinator) { c.Log.Level = "loud" }, "log level"},
		{"bad format", func(c *Coordinator) { c.Log.Format = "xml" }, "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("collects every error", func(t *testing.T) {
		cfg := base
		cfg.Addr = ""
		cfg.HistoryLimit = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "addr is required")
		assert.Contains(t, err.Error(), "history limit")
	})
}

func TestLoadRemote(t *testing.T) {
	cfg, err := LoadRemote()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.URL)
	assert.Empty(t, cfg.Host)

	t.Setenv("LECTERN_REMOTE_URL", "http://localhost:8080")
	_, err = LoadRemote()
	assert.ErrorContains(t, err, "ws:// or wss://")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, Log{Level: "warn", Format: FormatText})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	logger, err = NewLogger(&buf, Log{Level: "info", Format: FormatAuto})
	require.NoError(t, err)
	logger.Info("piped", "k", "v")
	assert.Contains(t, buf.String(), `"k":"v"`, "non-terminal writers get JSON")

	_, err = NewLogger(&buf, Log{Level: "nope", Format: FormatText})
	assert.Error(t, err)
}
