package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a Holder whenever its rules file changes on disk.
type Watcher struct {
	holder   *Holder
	watcher  *fsnotify.Watcher
	onReload func(*Table, error)
	logger   *zap.Logger
}

// NewWatcher watches the directory containing the holder's rules file.
// onReload, when set, is called after every reload attempt.
func NewWatcher(holder *Holder, onReload func(*Table, error), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(holder.Source().Path())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		holder:   holder,
		watcher:  fw,
		onReload: onReload,
		logger:   logger,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	target := filepath.Clean(w.holder.Source().Path())
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	w.logger.Info("Watching rules file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			table, err := w.holder.Reload()
			if w.onReload != nil {
				w.onReload(table, err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rules watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
