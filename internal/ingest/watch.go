package ingest

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"dreamloop/internal/logging"
)

// watch returns a channel that receives a token whenever something is created,
// written or renamed in the input directory. It returns nil when the watcher
// cannot be set up; the loop then relies on the idle interval alone.
func (l *Loop) watch(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(ctx, l.logger, "filesystem watcher unavailable; falling back to polling", "watch_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new inputs are noticed on the idle interval only"),
		)
		return nil
	}
	if err := watcher.Add(l.opts.InputDir); err != nil {
		_ = watcher.Close()
		logging.WarnWithContext(ctx, l.logger, "filesystem watcher unavailable; falling back to polling", "watch_unavailable",
			logging.Error(err),
			logging.String("dir", l.opts.InputDir),
			logging.String(logging.FieldImpact, "new inputs are noticed on the idle interval only"),
		)
		return nil
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Debug("filesystem watcher error", logging.Error(err))
			}
		}
	}()
	return wake
}
