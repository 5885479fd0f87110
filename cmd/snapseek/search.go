package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/cli"
	"github.com/hyperjump/snapseek/internal/client"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/orchestrator"
)

// buildSearchQuery joins positional args so multi-word queries work with or without quotes.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var format string
	var allOwners bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find photos matching a description",
		Example: `  snapseek search red car
  snapseek search "dog on a beach" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			q := &models.SearchQuery{Query: buildSearchQuery(args), Limit: limit}
			if !allOwners {
				q.OwnerID = cfg.Client.OwnerID
			}
			c := client.New(cfg.Client, client.WithLogger(logger))
			response, err := c.Query(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, outFormat)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default when 0)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().BoolVar(&allOwners, "all-owners", false, "search photos of every owner")
	return cmd
}

func newLiveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Search as you type: each stdin line is the current query text",
		Long: `Reads the search box contents line by line from stdin. Searches are
debounced by client.debounce and only the latest query's results are printed.
A blank line clears the results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			c := client.New(cfg.Client, client.WithLogger(logger))
			session := orchestrator.NewSearchSession(c,
				orchestrator.WithDebounce(cfg.Client.Debounce),
				orchestrator.WithSessionLogger(logger),
				orchestrator.WithOnUpdate(func(st orchestrator.SearchState) {
					mu.Lock()
					defer mu.Unlock()
					cli.WriteSearchState(out, st)
				}),
			)
			defer session.Close()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				session.SetQuery(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			return waitIdle(cmd.Context(), session, cfg.Client.Debounce+cfg.Client.Timeout, logger)
		},
	}
}

// waitIdle blocks until the session has no pending or in-flight search.
func waitIdle(ctx context.Context, s *orchestrator.SearchSession, limit time.Duration, logger *zap.Logger) error {
	deadline := time.After(limit)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for s.State().Searching {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			logger.Warn("gave up waiting for search", zap.Duration("after", limit))
			return nil
		case <-tick.C:
		}
	}
	return nil
}
