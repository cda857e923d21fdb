package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ibeckermayer/prayerkit/internal/logger"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 500 * time.Millisecond

// Watch calls onChange with the freshly loaded config each time the file
// at path is written. The parent directory is watched so editors that
// replace the file atomically are handled. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	log := logger.Named("config")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnw("Config watcher error", logger.FieldError, err)
		case <-pending:
			pending = nil
			cfg, err := LoadFile(path)
			if err != nil {
				log.Warnw("Ignoring unreadable config change", logger.FieldPath, path, logger.FieldError, err)
				continue
			}
			log.Infow("Config file changed", logger.FieldPath, path)
			onChange(cfg)
		}
	}
}
