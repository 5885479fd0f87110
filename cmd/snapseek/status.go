package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/snapseek/internal/cli"
	"github.com/hyperjump/snapseek/internal/client"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server's index size and configuration",
		Args:  cobra.NoArgs,
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

			status, err := client.New(cfg.Client, client.WithLogger(logger)).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, outFormat)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}
