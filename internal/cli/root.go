// Package cli implements the ghgledger command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghgledger/ghgledger/internal/app"
	"github.com/ghgledger/ghgledger/internal/config"
	"github.com/ghgledger/ghgledger/internal/logging"
)

// Build information, set with -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	ConfigFile string
	DataDir    string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the ghgledger root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ghgledger",
		Short: "Greenhouse-gas emissions ledger",
		Long: `ghgledger ingests World Bank style emissions CSV files and serves
yearly trends, sector breakdowns, gas filters and summaries over HTTP and gRPC.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "base directory for data files")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json, console)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig layers defaults or the config file, then the environment,
// then flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(opts.ConfigFile); err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	return cfg, nil
}

// openApp loads the configuration and opens the application without
// starting its servers.
func openApp(opts *RootOptions, adjust func(*config.Config)) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ghgledger version %s (commit: %s)\n", Version, Commit)
		},
	}
}
