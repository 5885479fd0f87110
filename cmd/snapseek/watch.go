package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/snapseek/internal/client"
	"github.com/hyperjump/snapseek/internal/gallery"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/orchestrator"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var syncExisting bool
	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Index photos as they appear in directories",
		Long: `Watches the given directories (default watch.directories) and uploads new
photos once they have been quiet for watch.debounce. With --sync, photos already
present are indexed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args, syncExisting)
		},
	}
	cmd.Flags().BoolVar(&syncExisting, "sync", true, "index photos already in the directories first")
	return cmd
}

func runWatch(ctx context.Context, opts *globalOptions, dirs []string, syncExisting bool) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if len(dirs) == 0 {
		dirs = cfg.Watch.Directories
	}
	if len(dirs) == 0 {
		return errors.New("no directories to watch (pass them as arguments or set watch.directories)")
	}

	c := client.New(cfg.Client, client.WithLogger(logger))
	owner := cfg.Client.OwnerID
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// Watcher callbacks fire on their own timers; uploads go through one worker.
	ready := make(chan string, 64)
	w := gallery.NewWatcher(dirs, cfg.Client.Patterns, cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			select {
			case ready <- path:
			case <-gctx.Done():
			}
		},
		gallery.WithDebounce(cfg.Watch.Debounce),
		gallery.WithLogger(logger),
	)
	if err := w.Start(gctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	logger.Info("Watching for new photos", zap.Strings("directories", dirs))

	g.Go(func() error {
		if syncExisting {
			batch := orchestrator.NewBatchIndexer(c, orchestrator.WithBatchLogger(logger))
			for _, dir := range dirs {
				photos, err := gallery.Scan(dir, cfg.Client.Patterns, 0)
				if err != nil {
					return err
				}
				for p := range batch.IndexAll(gctx, photos, owner) {
					if p.Kind == orchestrator.ProgressComplete {
						logger.Info(p.Message, zap.String("directory", dir), zap.Int("total", p.Total))
					}
				}
			}
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case path := <-ready:
				res, err := c.IndexPhoto(gctx, owner, models.Photo{Path: path})
				if err != nil {
					logger.Warn("Failed to index photo", zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("Photo indexed", zap.String("path", path), zap.Bool("already_indexed", res.AlreadyIndexed))
			}
		}
	})
	g.Go(func() error {
		w.Wait()
		cancel()
		return nil
	})
	err = g.Wait()
	w.Stop()
	return err
}
