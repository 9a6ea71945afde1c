package cmd

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jjenkins/tenders/internal/config"
	"github.com/jjenkins/tenders/internal/service"
	"github.com/jjenkins/tenders/internal/staging"
	"github.com/jjenkins/tenders/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tenders <initial_date> <end_date>",
	Short: "Synchronize the Mercado Publico tender index",
	Long: `Tenders downloads the daily tender listings published on Mercado Publico,
normalizes them and keeps a database table of every tender and its current status.

Running the root command performs the full pipeline for the inclusive date range:
extract (download to data/raw), transform (clean into data/interim) and load
(insert new tenders, update those whose status changed).

Examples:
  # Sync the first week of January 2022
  tenders 01-01-2022 07-01-2022

  # Re-run only the load stage from the staged files
  tenders load`,
	Args: cobra.ExactArgs(2),
	Run:  runSync,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	start, end, err := service.ParseRange(args[0], args[1])
	if err != nil {
		log.Fatalf("Invalid date range: %v", err)
	}
	validate(cfg.ValidateSource(), cfg.ValidateDatabase())

	ctx, cancel := signalContext()
	defer cancel()

	env := openEnv(cfg)
	defer env.db.Close()

	importer := env.importer(newCollector(cfg))
	if _, err := importer.Sync(ctx, start, end); err != nil {
		exitOnFailure(ctx, "Sync", err)
	}
}

// loadConfig reads settings and logs the effective values
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Describe(log.Default())
	return cfg
}

// validate stops the process on the first configuration error
func validate(errs ...error) {
	for _, err := range errs {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatalf("Configuration error: %v", cfgErr)
		}
		if err != nil {
			log.Fatal(err)
		}
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx, cancel
}

// exitOnFailure reports a stage failure and exits with status 1
func exitOnFailure(ctx context.Context, stage string, err error) {
	if ctx.Err() != nil {
		log.Printf("%s cancelled", stage)
		os.Exit(1)
	}
	log.Fatalf("%s failed: %v", stage, err)
}

func newCollector(cfg config.Config) *service.Collector {
	client := service.NewMercadoClient(cfg.Source)
	return service.NewCollector(client, client.Delay())
}

func stages(cfg config.Config) (staging.Stage, staging.Stage) {
	return staging.Stage{Dir: cfg.Staging.RawDir},
		staging.Stage{Dir: cfg.Staging.InterimDir, Labelled: true}
}

// storeEnv holds the stores sharing one database handle
type storeEnv struct {
	cfg         config.Config
	db          *sql.DB
	tenders     *store.TenderStore
	fetches     *store.FetchStore
	metricStore *store.MetricStore
	metrics     *service.MetricsService
}

func openEnv(cfg config.Config) *storeEnv {
	dialect, err := store.DialectFor(cfg.Database.Driver)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("Connecting to database...")
	db, err := store.NewDB(dialect, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	table := cfg.Database.Table
	tenders := store.NewTenderStore(db, dialect, table)
	fetches := store.NewFetchStore(db, dialect, table)
	metricStore := store.NewMetricStore(db, dialect, table)

	return &storeEnv{
		cfg:         cfg,
		db:          db,
		tenders:     tenders,
		fetches:     fetches,
		metricStore: metricStore,
		metrics:     service.NewMetricsService(tenders, fetches, metricStore),
	}
}

// ensureSchema creates every table the stores read from
func (e *storeEnv) ensureSchema(ctx context.Context) error {
	if err := e.tenders.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := e.fetches.EnsureSchema(ctx); err != nil {
		return err
	}
	return e.metricStore.EnsureSchema(ctx)
}

func (e *storeEnv) importer(collector *service.Collector) *service.Importer {
	raw, interim := stages(e.cfg)
	return service.NewImporter(collector, raw, interim, e.tenders, e.fetches, e.metrics)
}
