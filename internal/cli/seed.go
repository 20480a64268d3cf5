package cli

import (
	"github.com/spf13/cobra"

	"github.com/ghgledger/ghgledger/internal/reference"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert reference countries and sectors from a YAML file",
		Long: `Insert reference countries and sectors from a YAML seed file.

Entries whose alpha3 or series code already exists are skipped. Sectors
listing only a known World Bank series code take their industry, gas type
and unit from the built-in catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := reference.LoadSeed(args[0])
			if err != nil {
				return err
			}

			a, logger, err := openApp(rootOpts, nil)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()

			res, err := a.Seeder().Seed(cmd.Context(), sf)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
