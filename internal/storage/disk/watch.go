package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events produced by an atomic
// rename (create temp, write, chmod, rename).
const watchDebounce = 50 * time.Millisecond

// Watch invokes fn whenever the snapshot file is rewritten by another
// process. Rewrites performed through this Store are ignored. Watch blocks
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	if fn == nil {
		return fmt.Errorf("disk: watch callback required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("disk: create watcher: %w", err)
	}
	defer watcher.Close()
	// The directory is watched rather than the file: rename replaces the
	// inode and would silently end a file watch.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("disk: watch directory %q: %w", s.dir, err)
	}
	logger := s.loggers(ctx)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("disk.watch.error", "path", s.path, "error", err)
		case <-pending:
			pending = nil
			data, err := os.ReadFile(s.path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					logger.Warn("disk.watch.read_error", "path", s.path, "error", err)
				}
				continue
			}
			if !s.changedSinceLast(data) {
				continue
			}
			logger.Debug("disk.watch.changed", "path", s.path, "bytes", len(data))
			fn()
		}
	}
}
