package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghgledger/ghgledger/internal/config"
)

type serveOptions struct {
	httpAddr string
	grpcAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and gRPC when enabled) until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := openApp(rootOpts, func(cfg *config.Config) {
				if opts.httpAddr != "" {
					cfg.HTTP.Addr = opts.httpAddr
				}
				if opts.grpcAddr != "" {
					cfg.GRPC.Addr = opts.grpcAddr
					cfg.GRPC.Enabled = true
				}
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			if err := a.WaitForShutdown(cmd.Context()); err != nil {
				logger.Error("shutdown error", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC listen address (enables gRPC)")
	return cmd
}
