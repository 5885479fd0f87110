package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hyperjump/snapseek/internal/client"
	"github.com/hyperjump/snapseek/internal/gallery"
	"github.com/hyperjump/snapseek/internal/orchestrator"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Upload every photo under a directory for indexing",
		Long: `Scans <dir> for photos matching client.patterns, newest first, and uploads
each one downsized to client.max_dimension pixels. Photos already indexed for
the owner are skipped by the server. A failed photo does not stop the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, opts, args[0], limit, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "index at most this many photos (default client.max_photos, 0 = all)")
	return cmd
}

func runIndex(ctx context.Context, opts *globalOptions, dir string, limit int, out, errOut io.Writer) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if limit <= 0 {
		limit = cfg.Client.MaxPhotos
	}
	photos, err := gallery.Scan(dir, cfg.Client.Patterns, limit)
	if err != nil {
		return fmt.Errorf("failed to scan photos: %w", err)
	}
	fmt.Fprintf(out, "Found %d photos in %s\n", len(photos), dir)

	c := client.New(cfg.Client, client.WithLogger(logger))
	batch := orchestrator.NewBatchIndexer(c, orchestrator.WithBatchLogger(logger))

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(errOut) }),
	)

	var failed []orchestrator.Progress
	var skipped int
	for p := range batch.IndexAll(ctx, photos, cfg.Client.OwnerID) {
		switch p.Kind {
		case orchestrator.ProgressIndexing:
			bar.Describe(p.Message)
		case orchestrator.ProgressIndexed:
			if p.AlreadyIndexed {
				skipped++
			}
			_ = bar.Add(1)
		case orchestrator.ProgressFailed:
			failed = append(failed, p)
			_ = bar.Add(1)
		case orchestrator.ProgressComplete:
			_ = bar.Finish()
			fmt.Fprintln(out, p.Message)
			if skipped > 0 {
				fmt.Fprintf(out, "%d were already indexed.\n", skipped)
			}
			for _, f := range failed {
				fmt.Fprintf(out, "  failed: %s: %v\n", f.Photo.Path, f.Err)
			}
			if p.Err != nil {
				return fmt.Errorf("indexing interrupted: %w", p.Err)
			}
		}
	}
	return nil
}
