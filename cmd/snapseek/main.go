// Package main is the snapseek CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/snapseek/config.yaml"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
	owner      string
	serverURL  string
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists (for development), and a missing default
// file falls back to built-in defaults so client commands work without one.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config, applies flag overrides and builds the logger.
func (o *globalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Client.OwnerID = utils.FirstNonEmpty(o.owner, cfg.Client.OwnerID)
	cfg.Client.ServerURL = utils.FirstNonEmpty(o.serverURL, cfg.Client.ServerURL)

	debug := cfg.Debug || o.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "snapseek",
		Short: "Search your photos by describing them",
		Long: `snapseek indexes photos as multimodal embeddings and finds them again
from a free-text description such as "red car at the beach".

Run "snapseek server" to start the API, then "snapseek index <dir>" to
upload a photo library and "snapseek search <query>" to query it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("snapseek version {{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.owner, "owner", "", "owner id (default from client.owner_id)")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "", "server URL (default from client.server_url)")

	root.AddCommand(
		newServerCmd(opts),
		newIndexCmd(opts),
		newSearchCmd(opts),
		newLiveCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snapseek version %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
