package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher calls OnChange whenever the watched file is written, created or replaced.
type ConfigWatcher struct {
	path     string
	onChange func() error
	logger   *zap.Logger
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, onChange func() error, logger *zap.Logger) *ConfigWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigWatcher{path: filepath.Clean(path), onChange: onChange, logger: logger}
}

// Run watches until ctx is canceled.
// The parent directory is watched so editors that replace the file are seen.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("watching config file", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Info("config file changed", zap.String("op", ev.Op.String()))
			if err := w.onChange(); err != nil {
				w.logger.Warn("failed to reload config file", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
