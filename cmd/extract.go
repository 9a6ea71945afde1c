package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/jjenkins/tenders/internal/service"
)

var extractCmd = &cobra.Command{
	Use:   "extract <initial_date> <end_date>",
	Short: "Download daily listings into the raw staging directory",
	Long: `Extract requests the tender listing of every day in the inclusive range,
one day at a time, and writes the records and fetch provenance to the raw
staging directory. Days that keep failing after the retry limit are recorded
with their last status code and the run continues.

Dates use the DD-MM-YYYY format.`,
	Args: cobra.ExactArgs(2),
	Run:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	start, end, err := service.ParseRange(args[0], args[1])
	if err != nil {
		log.Fatalf("Invalid date range: %v", err)
	}
	validate(cfg.ValidateSource())

	ctx, cancel := signalContext()
	defer cancel()

	raw, interim := stages(cfg)
	importer := service.NewImporter(newCollector(cfg), raw, interim, nil, nil, nil)

	stats, err := importer.Extract(ctx, start, end)
	if err != nil {
		exitOnFailure(ctx, "Extract", err)
	}
	importer.PrintExtractSummary(stats)
}
