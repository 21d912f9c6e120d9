package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-seeds the catalog from path whenever the file is written. A file
// that fails to parse is logged and the stored rules are left as they were.
// Call the returned stop function to release the watcher.
func (c *Catalog) Watch(ctx context.Context, path string) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rule watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rule watcher add %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					c.reseed(ctx, path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("rule watcher error", "path", path, "error", err)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (c *Catalog) reseed(ctx context.Context, path string) {
	rules, err := LoadFile(path)
	if err != nil {
		slog.Warn("rule file reload failed", "path", path, "error", err)
		return
	}
	if err := c.Seed(ctx, rules); err != nil {
		slog.Warn("rule file reseed failed", "path", path, "error", err)
		return
	}
	slog.Info("rule file reloaded", "path", path, "rules", len(rules))
}
