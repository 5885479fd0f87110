package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/indexer"
	"github.com/hyperjump/snapseek/internal/search"
	"github.com/hyperjump/snapseek/internal/server"
	"github.com/hyperjump/snapseek/internal/storage"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

func newServerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the indexing and search API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts)
		},
	}
}

func runServer(ctx context.Context, opts *globalOptions) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := embedding.NewProvider(ctx, cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer provider.Close()

	index, err := storage.Open(cfg.Storage, provider.Dimensions())
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	engine := search.NewEngine(provider, index, cfg.Search, search.WithLogger(logger))
	idx := indexer.NewIndexer(provider, index, indexer.WithLogger(logger))
	srv := server.NewServer(engine, idx, index, cfg, provider.Name(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Stop(shutdownCtx)
		saveSnapshot(cfg.Storage, index, logger)
		return err
	})
	return g.Wait()
}

// saveSnapshot persists the memory backend when a snapshot path is configured.
func saveSnapshot(cfg config.StorageConfig, index vector.Index, logger *zap.Logger) {
	mem, ok := index.(*vector.MemoryIndex)
	if !ok || cfg.SnapshotPath == "" {
		return
	}
	logger = utils.OrNop(logger)
	if err := mem.Save(cfg.SnapshotPath); err != nil {
		logger.Warn("snapshot save failed", zap.String("path", cfg.SnapshotPath), zap.Error(err))
		return
	}
	logger.Info("Snapshot saved", zap.String("path", cfg.SnapshotPath))
}
