package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of write events editors produce when
// saving a file into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads repo from the catalog file at path whenever it changes, until
// ctx is cancelled. The parent directory is watched rather than the file so
// that editors replacing the file by rename are still observed.
//
// onReload, when non-nil, is called after every reload attempt with the
// error, if any. A catalog that fails to parse or validate leaves the last
// good contents in place.
func Watch(ctx context.Context, path string, repo *MemoryRepository, logger *slog.Logger, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch catalog dir: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}

		case <-pending:
			pending = nil
			err := reload(abs, repo)
			if err != nil {
				logger.Warn("catalog reload failed, keeping previous catalog", "path", abs, "error", err)
			} else {
				logger.Info("catalog reloaded", "path", abs)
			}
			if onReload != nil {
				onReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func reload(path string, repo *MemoryRepository) error {
	cat, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	return repo.Load(cat)
}
