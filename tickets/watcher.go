package tickets

import (
	"context"
	"path/filepath"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher refreshes the catalog when ticket files change outside the API.
type Watcher struct {
	catalog   *Catalog
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
}

func NewWatcher(catalog *Catalog, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(catalog.store.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{catalog: catalog, fsWatcher: fsw, debounce: debounce}, nil
}

// Run blocks until ctx is done, coalescing bursts of events into one refresh.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsWatcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Error("Ticket watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.catalog.Refresh(); err != nil {
				logger.Error("Failed to refresh ticket catalog", zap.Error(err))
			}
		}
	}
}
