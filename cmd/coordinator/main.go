// Command coordinator serves the live session to display and control
// clients over WebSocket, plus a small operator HTTP API.
//
// Usage:
//
//	coordinator                         serve with LECTERN_* configuration
//	coordinator --addr :9000 --db x.db  serve from a SQLite catalog
//	coordinator import content.yaml x.db
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/lectern/internal/config"
	"github.com/dreamware/lectern/internal/content"
	"github.com/dreamware/lectern/internal/content/sqlite"
	"github.com/dreamware/lectern/internal/coordinator"
	"github.com/dreamware/lectern/internal/settings"
	"github.com/dreamware/lectern/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("coordinator: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Coordinator

	root := &cobra.Command{
		Use:           "coordinator",
		Short:         "Serve a live passage-display session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.NewLogger(os.Stderr, cfg.Log)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	flags := root.PersistentFlags()
	flags.String("addr", "", "listen address (LECTERN_ADDR)")
	flags.String("content", "", "YAML catalog file (LECTERN_CONTENT_FILE)")
	flags.String("db", "", "SQLite catalog, overrides --content (LECTERN_CONTENT_DB)")
	flags.String("global-settings", "", "YAML file persisting global settings (LECTERN_GLOBAL_SETTINGS_FILE)")
	flags.String("log-level", "", "debug, info, warn or error (LECTERN_LOG_LEVEL)")
	flags.String("log-format", "", "auto, text or json (LECTERN_LOG_FORMAT)")

	root.AddCommand(newImportCmd())
	return root
}

// loadConfig reads the environment, then applies every flag the user set
// explicitly on cmd, then validates the result.
func loadConfig(cmd *cobra.Command) (config.Coordinator, error) {
	var cfg config.Coordinator
	if err := config.ParseEnv(&cfg); err != nil {
		return config.Coordinator{}, err
	}

	overrides := map[string]*string{
		"addr":            &cfg.Addr,
		"content":         &cfg.ContentFile,
		"db":              &cfg.ContentDB,
		"global-settings": &cfg.GlobalSettingsFile,
		"log-level":       &cfg.Log.Level,
		"log-format":      &cfg.Log.Format,
	}
	for name, dst := range overrides {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
	}
	return cfg, cfg.Validate()
}

// serve runs the coordinator until ctx is cancelled.
func serve(ctx context.Context, cfg config.Coordinator, logger *slog.Logger) error {
	src, err := openContent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.close()

	var global settings.Global = settings.NewMemoryGlobal(nil)
	if cfg.GlobalSettingsFile != "" {
		fg, err := settings.OpenFileGlobal(cfg.GlobalSettingsFile)
		if err != nil {
			return err
		}
		global = fg
	}

	router := transport.NewRouter()
	hub := transport.NewHub(router, logger.With("component", "hub"), transport.HubConfig{
		MaxFrameBytes: cfg.MaxFrameBytes,
	})
	coord := coordinator.New(src.repo, settings.NewPartition(global), hub, coordinator.Options{
		LookupTimeout: cfg.LookupTimeout,
		HistoryLimit:  historyLimit(cfg.HistoryLimit),
		Logger:        logger.With("component", "coordinator"),
	})
	coord.Register(router)
	hub.OnConnect(coord.HandleConnect)
	hub.OnDisconnect(coord.HandleDisconnect)

	monitor := transport.NewMonitor(cfg.HeartbeatInterval, logger.With("component", "monitor"))
	monitor.SetOnUnhealthy(func(c transport.Client) {
		hub.Disconnect(c.ID())
	})
	go monitor.Start(ctx, hub.Clients)
	defer monitor.Stop()

	if src.watch != nil {
		go func() {
			err := src.watch(ctx, func(err error) {
				status := "content reloaded"
				if err != nil {
					status = "content reload failed: " + err.Error()
				}
				coord.SetStatus(ctx, &status)
			})
			if err != nil {
				logger.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	srv := newServer(coord, hub, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", cfg.Addr, "events", router.Events())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	logger.Info("coordinator stopped")
	return nil
}

// historyLimit maps the configured limit, where 0 means unbounded, onto
// coordinator.Options, where 0 selects the default.
func historyLimit(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// contentSource is the repository the coordinator reads plus its lifecycle.
type contentSource struct {
	repo  content.Repository
	close func()
	watch func(ctx context.Context, onReload func(error)) error
}

func openContent(ctx context.Context, cfg config.Coordinator, logger *slog.Logger) (*contentSource, error) {
	if cfg.ContentDB != "" {
		store, err := sqlite.Open(cfg.ContentDB)
		if err != nil {
			return nil, err
		}
		if _, _, err := store.ShabadOrderRange(ctx); errors.Is(err, content.ErrEmptyCatalog) {
			logger.Warn("content database is empty", "path", cfg.ContentDB)
		}
		logger.Info("serving content from sqlite", "path", cfg.ContentDB)
		return &contentSource{
			repo:  store,
			close: func() { _ = store.Close() },
		}, nil
	}

	cat, err := content.LoadCatalogFile(cfg.ContentFile)
	if err != nil {
		return nil, err
	}
	repo := content.NewMemoryRepository()
	if err := repo.Load(cat); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ContentFile, err)
	}
	logger.Info("serving content from catalog", "path", cfg.ContentFile, "banis", len(repo.Banis()))

	watchLogger := logger.With("component", "catalog")
	return &contentSource{
		repo:  repo,
		close: func() {},
		watch: func(ctx context.Context, onReload func(error)) error {
			return content.Watch(ctx, cfg.ContentFile, repo, watchLogger, onReload)
		},
	}, nil
}
