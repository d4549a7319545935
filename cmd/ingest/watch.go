package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/WessleyAI/routewise/engine/ingest"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// defaultDebounce batches the burst of events editors emit on save.
const defaultDebounce = 500 * time.Millisecond

// watcher re-ingests documents that change in a directory and drops the
// chunks of documents that disappear.
type watcher struct {
	deps     ingest.Deps
	pipeline fn.Stage[ingest.Document, ingest.Result]
	debounce time.Duration
	logger   *slog.Logger
}

func newWatcher(deps ingest.Deps, debounce time.Duration, logger *slog.Logger) *watcher {
	return &watcher{
		deps:     deps,
		pipeline: ingest.NewPipeline(deps),
		debounce: debounce,
		logger:   logger,
	}
}

// Run ingests everything already in dir, then follows changes until ctx is
// cancelled.
func (w *watcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	paths, err := collectSources([]string{dir})
	if err != nil {
		return err
	}
	for _, path := range paths {
		w.apply(ctx, path, false)
	}

	w.logger.Info("watching for documents", "dir", dir, "existing", len(paths))
	return w.loop(ctx, fw.Events, fw.Errors)
}

// loop collects events until the debounce window closes, then applies the
// last state seen for each path. A removal followed by a create within one
// window is treated as a rewrite.
func (w *watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	pending := make(map[string]bool) // path -> removed
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down")
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ingest.IsSource(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = false
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				pending[ev.Name] = true
			default:
				continue
			}
			if flush == nil {
				flush = time.After(w.debounce)
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-flush:
			for path, removed := range pending {
				w.apply(ctx, path, removed)
			}
			clear(pending)
			flush = nil
		}
	}
}

func (w *watcher) apply(ctx context.Context, path string, removed bool) {
	if removed {
		slug := ingest.SlugFor(path)
		n, err := ingest.Remove(ctx, w.deps, slug)
		if err != nil {
			w.logger.Error("remove failed", "path", path, "err", err)
			return
		}
		w.logger.Info("removed", "slug", slug, "chunks", n)
		return
	}

	doc, err := ingest.ReadDocument(path)
	if err != nil {
		w.logger.Error("read failed", "path", path, "err", err)
		return
	}
	res, err := w.pipeline(ctx, doc).Unwrap()
	if err != nil {
		w.logger.Error("ingest failed", "path", path, "err", err)
		return
	}
	w.logger.Info("ingested", "slug", res.Slug, "chunks", res.Chunks, "replaced", res.Replaced)
}
