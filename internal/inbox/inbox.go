// Package inbox watches a directory and hands every new or rewritten
// document to a handler once the writer has finished with it.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultExtensions are the document types picked up by default.
var DefaultExtensions = []string{".txt", ".md"}

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

type Watcher struct {
	extensions []string
	settle     time.Duration
	log        *slog.Logger
}

// New returns a Watcher for files with the given extensions. A file is
// handled after settle has passed without further events for it.
func New(extensions []string, settle time.Duration, logger *slog.Logger) *Watcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{extensions: extensions, settle: settle, log: logger}
}

// Watch blocks until ctx is done, calling handle for every settled file in
// dir, one at a time. Handler errors are logged and do not stop the watch.
func (w *Watcher) Watch(ctx context.Context, dir string, handle Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Info("watching inbox", "dir", dir, "extensions", w.extensions)

	pending := map[string]time.Time{}
	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.watched(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)

		case now := <-tick.C:
			var ready []string
			for path, last := range pending {
				if now.Sub(last) >= w.settle {
					ready = append(ready, path)
				}
			}
			slices.Sort(ready)
			for _, path := range ready {
				delete(pending, path)
				if err := handle(ctx, path); err != nil {
					w.log.Error("failed to process file", "path", path, "error", err)
				}
			}
		}
	}
}

func (w *Watcher) watched(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(base)))
}
