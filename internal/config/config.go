// Package config loads lectern configuration from the environment.
//
// Every setting has an LECTERN_* variable with a default; the binaries let
// cobra flags override individual fields after ParseEnv has run.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/term"
)

// Log formats accepted by LECTERN_LOG_FORMAT.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Log selects the structured logger the binaries build.
type Log struct {
	Level  string `env:"LECTERN_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LECTERN_LOG_FORMAT" envDefault:"auto"`
}

// Coordinator configures the coordinator server.
type Coordinator struct {
	Addr               string        `env:"LECTERN_ADDR"                 envDefault:":8080"`
	ContentFile        string        `env:"LECTERN_CONTENT_FILE"         envDefault:"content.yaml"`
	ContentDB          string        `env:"LECTERN_CONTENT_DB"`
	GlobalSettingsFile string        `env:"LECTERN_GLOBAL_SETTINGS_FILE"`
	LookupTimeout      time.Duration `env:"LECTERN_LOOKUP_TIMEOUT"       envDefault:"5s"`
	HistoryLimit       int           `env:"LECTERN_HISTORY_LIMIT"        envDefault:"1000"`
	HeartbeatInterval  time.Duration `env:"LECTERN_HEARTBEAT_INTERVAL"   envDefault:"15s"`
	MaxFrameBytes      int           `env:"LECTERN_MAX_FRAME_BYTES"      envDefault:"65536"`
	Log                Log
}

// Remote configures the command-line remote.
type Remote struct {
	URL  string `env:"LECTERN_REMOTE_URL"  envDefault:"ws://localhost:8080/ws"`
	Host string `env:"LECTERN_REMOTE_HOST"`
	Log  Log
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadCoordinator parses and validates the coordinator configuration.
func LoadCoordinator() (Coordinator, error) {
	var cfg Coordinator
	if err := ParseEnv(&cfg); err != nil {
		return Coordinator{}, err
	}
	return cfg, cfg.Validate()
}

// LoadRemote parses and validates the remote configuration.
func LoadRemote() (Remote, error) {
	var cfg Remote
	if err := ParseEnv(&cfg); err != nil {
		return Remote{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Coordinator) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.ContentDB == "" && strings.TrimSpace(c.ContentFile) == "" {
		errs = append(errs, errors.New("one of content file or content db is required"))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lookup timeout must be positive, got %s", c.LookupTimeout))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history limit must be >= 0, got %d", c.HistoryLimit))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat interval must be positive, got %s", c.HeartbeatInterval))
	}
	if c.MaxFrameBytes < 1024 {
		errs = append(errs, fmt.Errorf("max frame bytes must be >= 1024, got %d", c.MaxFrameBytes))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the remote URL scheme and log settings.
func (r Remote) Validate() error {
	var errs []error
	if !strings.HasPrefix(r.URL, "ws://") && !strings.HasPrefix(r.URL, "wss://") {
		errs = append(errs, fmt.Errorf("remote url must be ws:// or wss://, got %q", r.URL))
	}
	if err := r.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the level and format names.
func (l Log) Validate() error {
	if _, err := l.level(); err != nil {
		return err
	}
	switch l.Format {
	case FormatAuto, FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
}

func (l Log) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// NewLogger builds a logger writing to w. With FormatAuto the output is
// text when w is a terminal and JSON otherwise.
func NewLogger(w io.Writer, l Log) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	format := l.Format
	if format == FormatAuto {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = FormatText
		}
	}

	switch format {
	case FormatText:
		return slog.New(slog.NewTextHandler(w, options)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
}
