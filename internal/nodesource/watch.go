package nodesource

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/kb"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher republishes a node file to a feed whenever it changes.
type Watcher struct {
	Path     string
	Feed     *kb.Feed
	Log      logging.Logger
	Debounce time.Duration
}

// Watch loads path into feed and then keeps it in sync until ctx is done.
// It is shorthand for (&Watcher{...}).Run(ctx).
func Watch(ctx context.Context, path string, feed *kb.Feed, log logging.Logger) error {
	return (&Watcher{Path: path, Feed: feed, Log: log}).Run(ctx)
}

// Run performs the initial load, returning its error, and then blocks
// reloading on every write, create or rename of the file. Reload failures are
// logged and the last good snapshot stays published. The parent directory is
// watched so that atomic replace-by-rename is seen.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = logging.Noop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target := filepath.Clean(w.Path)
	log = log.With(logging.String("nodes_file", target))

	if err := w.load(ctx, log); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	change := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == target && event.Op&change != 0 {
				pending = time.After(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn(ctx, "file watcher error", logging.Err(err))
		case <-pending:
			pending = nil
			if err := w.load(ctx, log); err != nil {
				log.Warn(ctx, "node file reload failed; keeping last snapshot", logging.Err(err))
			}
		}
	}
}

func (w *Watcher) load(ctx context.Context, log logging.Logger) error {
	nodes, err := LoadFile(w.Path)
	if err != nil {
		return err
	}
	version := w.Feed.Publish(nodes)
	log.Info(ctx, "published node snapshot",
		logging.Int("nodes", len(nodes)),
		logging.Any("version", version),
	)
	return nil
}
