package cmd

import (
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Reconcile the interim staged files with the database",
	Long: `Load reads the interim staging directory, compares it with the tender table
and writes only what changed: tenders not yet stored are inserted and tenders
whose status differs are updated. Each record is written in its own
transaction, so one failing record does not stop the rest.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		validate(cfg.ValidateDatabase())

		ctx, cancel := signalContext()
		defer cancel()

		env := openEnv(cfg)
		defer env.db.Close()

		importer := env.importer(nil)
		stats, err := importer.Load(ctx)
		if err != nil {
			exitOnFailure(ctx, "Load", err)
		}
		importer.PrintLoadSummary(stats)
		importer.RecordMetrics(ctx, stats)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
