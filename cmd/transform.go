package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jjenkins/tenders/internal/service"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Normalize the raw staged files into the interim directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		ctx, cancel := signalContext()
		defer cancel()

		raw, interim := stages(cfg)
		importer := service.NewImporter(nil, raw, interim, nil, nil, nil)

		stats, err := importer.Transform(ctx)
		if err != nil {
			exitOnFailure(ctx, "Transform", err)
		}
		importer.PrintTransformSummary(stats)
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
