package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type ingestOptions struct {
	fromStorage string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [file.csv]",
		Short: "Ingest a wide-format emissions CSV file",
		Long: `Ingest a wide-format emissions CSV file into the ledger.

The file is read from disk, or from the configured upload storage with
--from-storage <key>. The ingestion report is printed as JSON; a rejected
file prints its report and exits non-zero.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.fromStorage != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := openApp(rootOpts, nil)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			ctx := cmd.Context()
			var data []byte
			if opts.fromStorage != "" {
				if a.Archiver() == nil {
					return errors.New("--from-storage requires a storage type")
				}
				data, err = a.Archiver().Load(ctx, opts.fromStorage)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			report, err := a.Pipeline().Ingest(ctx, data)
			if report != nil {
				if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("ingestion rejected: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.fromStorage, "from-storage", "", "ingest an archived upload by storage key")
	return cmd
}
