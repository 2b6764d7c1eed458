package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const settle = 200 * time.Millisecond

// Watch reloads path whenever it changes and passes the parsed targets to
// apply. An invalid file is logged and ignored; the previous definitions
// stay in effect. Watch blocks until ctx is done.
//
// The directory is watched rather than the file so editors that replace the
// file on save are still seen.
func Watch(ctx context.Context, path string, log *zap.Logger, apply func(context.Context, []*domain.Target) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reload := func() {
		ts, err := Load(abs)
		if err != nil {
			log.Error("targets_reload_failed", zap.String("path", abs), zap.Error(err))
			return
		}
		if err := apply(ctx, ts); err != nil {
			log.Error("targets_apply_failed", zap.String("path", abs), zap.Error(err))
			return
		}
		log.Info("targets_reloaded", zap.String("path", abs), zap.Int("count", len(ts)))
	}

	// editors emit bursts of events; wait for them to settle
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
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				pending = time.After(settle)
			}
		case <-pending:
			pending = nil
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("targets_watch_error", zap.Error(err))
		}
	}
}
