// Command ingest loads route documents into the chunk store. It ingests
// files directly, watches a directory for changes, or consumes documents
// queued on NATS.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/ingest"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var cfgPath string
	root := &cobra.Command{
		Use:          "routewise-ingest",
		Short:        "Load route documents into the retrieval store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (default $ROUTEWISE_CONFIG)")
	root.AddCommand(
		filesCmd(&cfgPath, logger),
		watchCmd(&cfgPath, logger),
		consumeCmd(&cfgPath, logger),
		removeCmd(&cfgPath, logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func filesCmd(cfgPath *string, logger *slog.Logger) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "files [paths...]",
		Short: "Ingest text and markdown files (default: ingest.dir)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, *cfgPath, logger, queue)
			if err != nil {
				return err
			}
			defer e.close()

			if len(args) == 0 {
				args = []string{e.cfg.Ingest.Dir}
			}
			paths, err := collectSources(args)
			if err != nil {
				return err
			}

			handle := e.ingestFile
			if queue {
				handle = e.enqueueFile
			}
			ok, failed := ingestAll(ctx, paths, handle, logger)
			logger.Info("ingest finished", "files", len(paths), "ok", ok, "failed", failed, "queued", queue)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "publish documents to NATS instead of ingesting in-process")
	return cmd
}

func watchCmd(cfgPath *string, logger *slog.Logger) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest documents as they change in a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, *cfgPath, logger, false)
			if err != nil {
				return err
			}
			defer e.close()

			if dir == "" {
				dir = e.cfg.Ingest.Dir
			}
			w := newWatcher(e.deps, defaultDebounce, logger)
			return w.Run(ctx, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to watch (default ingest.dir)")
	return cmd
}

func consumeCmd(cfgPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Ingest documents queued on NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, *cfgPath, logger, true)
			if err != nil {
				return err
			}
			defer e.close()

			sub, err := ingest.StartConsumer(e.nc, e.deps)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			logger.Info("consuming ingest requests", "subject", ingest.Requests.Name, "queue", ingest.QueueGroup)
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func removeCmd(cfgPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slug>...",
		Short: "Delete every chunk stored under the given slugs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, *cfgPath, logger, false)
			if err != nil {
				return err
			}
			defer e.close()

			for _, slug := range args {
				n, err := ingest.Remove(ctx, e.deps, slug)
				if err != nil {
					return err
				}
				logger.Info("removed", "slug", slug, "chunks", n)
			}
			return nil
		},
	}
}

// env is the wiring shared by every subcommand.
type env struct {
	cfg     *config.Config
	deps    ingest.Deps
	nc      *nats.Conn
	closers []func()
}

// setup loads config and connects the stores. Qdrant and NATS are used when
// configured; requireNATS turns a missing NATS URL into an error.
func setup(ctx context.Context, cfgPath string, logger *slog.Logger, requireNATS bool) (*env, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	stores, err := store.Open(ctx, cfg.Neo4j)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { _ = stores.Close(context.Background()) })
	if !stores.Durable {
		logger.Warn("no neo4j url configured, chunks will not outlive this process")
	}

	embedder, err := embed.New(cfg.Embedding, cfg.LLM.OllamaURL)
	if err != nil {
		e.close()
		return nil, err
	}

	e.deps = ingest.Deps{
		Chunks:    stores.Chunks,
		Embedder:  embedder,
		Metrics:   metrics.New(),
		Logger:    logger,
		ChunkSize: cfg.Ingest.ChunkSize,
		Overlap:   cfg.Ingest.Overlap,
	}

	if cfg.Qdrant.Addr != "" {
		vs, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = vs.Close() })
		if err := vs.EnsureCollection(ctx, embedder.Dimension()); err != nil {
			e.close()
			return nil, fmt.Errorf("qdrant collection: %w", err)
		}
		e.deps.Mirror = vs
	}

	switch {
	case cfg.NATS.URL != "":
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("routewise-ingest"))
		if err != nil {
			e.close()
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		e.closers = append(e.closers, func() { _ = nc.Drain() })
		e.nc = nc
		e.deps.NATS = nc
	case requireNATS:
		e.close()
		return nil, fmt.Errorf("nats.url is required for this command")
	}
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *env) ingestFile(ctx context.Context, path string) error {
	doc, err := ingest.ReadDocument(path)
	if err != nil {
		return err
	}
	_, err = ingest.NewPipeline(e.deps)(ctx, doc).Unwrap()
	return err
}

func (e *env) enqueueFile(ctx context.Context, path string) error {
	doc, err := ingest.ReadDocument(path)
	if err != nil {
		return err
	}
	return ingest.Enqueue(ctx, e.nc, doc)
}

// collectSources expands directories into the ingestible files beneath
// them. Explicit file arguments are kept even without a known extension.
func collectSources(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ingest.IsSource(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return fn.Unique(paths), nil
}

// ingestAll runs handle over paths, logging and counting failures instead
// of stopping at the first one.
func ingestAll(ctx context.Context, paths []string, handle func(context.Context, string) error, logger *slog.Logger) (ok, failed int) {
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if err := handle(ctx, path); err != nil {
			logger.Error("ingest failed", "path", path, "err", err)
			failed++
			continue
		}
		logger.Info("ingested", "path", path)
		ok++
	}
	return ok, failed
}
