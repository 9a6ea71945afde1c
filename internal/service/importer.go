package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jjenkins/tenders/internal/model"
	"github.com/jjenkins/tenders/internal/staging"
	"github.com/jjenkins/tenders/internal/store"
)

// ExtractStats tracks download statistics
type ExtractStats struct {
	Days           int
	Succeeded      int
	Failed         int
	Records        int
	RecordsFile    string
	ProvenanceFile string
}

// TransformStats tracks normalization statistics
type TransformStats struct {
	NormalizeStats
	Provenance     int
	Removed        []string
	RecordsFile    string
	ProvenanceFile string
}

// LoadStats tracks store write statistics
type LoadStats struct {
	RunID     string
	Total     int
	Inserted  int
	Upserted  int
	Unchanged int
	Failed    int
	Fetches   int
}

// Importer orchestrates the extract, transform and load stages
type Importer struct {
	collector *Collector
	raw       staging.Stage
	interim   staging.Stage
	tenders   *store.TenderStore
	fetches   *store.FetchStore
	metrics   *MetricsService
	logger    *log.Logger
	errLogger *log.Logger
}

// NewImporter creates a new Importer. The collector may be nil when only the
// transform or load stages run, and the stores may be nil when only extract
// and transform run.
func NewImporter(collector *Collector, raw, interim staging.Stage, tenders *store.TenderStore, fetches *store.FetchStore, metrics *MetricsService) *Importer {
	return &Importer{
		collector: collector,
		raw:       raw,
		interim:   interim,
		tenders:   tenders,
		fetches:   fetches,
		metrics:   metrics,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		errLogger: log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// Extract downloads every day from start to end inclusive and writes the raw stage
func (i *Importer) Extract(ctx context.Context, start, end time.Time) (*ExtractStats, error) {
	if i.collector == nil {
		return nil, errors.New("extract requires a collector")
	}

	stats := &ExtractStats{Days: len(Days(start, end))}

	collection, err := i.collector.Collect(ctx, start, end)
	if err != nil {
		return stats, fmt.Errorf("failed to collect listings: %w", err)
	}

	for _, p := range collection.Provenance {
		if p.ResponseStatus == 200 {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	stats.Records = len(collection.Records)

	stats.RecordsFile, err = i.raw.WriteRecords(collection.Records, start, end)
	if err != nil {
		return stats, err
	}
	stats.ProvenanceFile, err = i.raw.WriteProvenance(collection.Provenance, start, end)
	if err != nil {
		return stats, err
	}

	i.logger.Printf("Saved raw data to %s", stats.RecordsFile)
	return stats, nil
}

// Transform normalizes every raw record and rewrites the interim stage
func (i *Importer) Transform(ctx context.Context) (*TransformStats, error) {
	stats := &TransformStats{}

	raw, err := i.raw.ReadRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw records: %w", err)
	}
	provenance, err := i.raw.ReadProvenance()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw provenance: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, normStats := Normalize(raw)
	stats.NormalizeStats = normStats
	stats.Provenance = len(provenance)

	i.logger.Println("Dropping incomplete rows...")
	i.logger.Printf("  Rows before: %d, after: %d, dropped: %d", normStats.Input, normStats.Input-normStats.Incomplete, normStats.Incomplete)
	i.logger.Println("Dropping duplicated rows...")
	i.logger.Printf("  Rows before: %d, after: %d, dropped: %d", normStats.Input-normStats.Incomplete, normStats.Output, normStats.Duplicates)

	from, to, ok := span(clean, provenance)
	if !ok {
		i.logger.Println("No raw data found, nothing to transform")
		return stats, nil
	}

	stats.Removed, err = i.interim.Clear()
	if err != nil {
		return stats, err
	}
	for _, name := range stats.Removed {
		i.logger.Printf("  File %s deleted", name)
	}

	stats.RecordsFile, err = i.interim.WriteRecords(clean, from, to)
	if err != nil {
		return stats, err
	}
	stats.ProvenanceFile, err = i.interim.WriteProvenance(provenance, from, to)
	if err != nil {
		return stats, err
	}

	i.logger.Printf("Saved transformed data from %s to %s", from.Format(publicationLayout), to.Format(publicationLayout))
	return stats, nil
}

// span returns the publication date range covered by the clean records,
// falling back to the provenance rows when no record survived
func span(clean []model.Listing, provenance []model.Provenance) (time.Time, time.Time, bool) {
	var dates []time.Time
	for _, l := range clean {
		dates = append(dates, l.PublicationDate)
	}
	if len(dates) == 0 {
		for _, p := range provenance {
			dates = append(dates, p.PublicationDate)
		}
	}
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, false
	}

	from, to := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return from, to, true
}

// Load reconciles the interim stage with the store and applies the minimal writes
func (i *Importer) Load(ctx context.Context) (*LoadStats, error) {
	if i.tenders == nil || i.fetches == nil {
		return nil, errors.New("load requires a tender store and a fetch store")
	}

	stats := &LoadStats{RunID: uuid.NewString()}

	records, err := i.interim.ReadRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to read interim records: %w", err)
	}
	provenance, err := i.interim.ReadProvenance()
	if err != nil {
		return nil, fmt.Errorf("failed to read interim provenance: %w", err)
	}
	stats.Total = len(records)

	if err := i.tenders.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := i.fetches.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	snapshot, err := i.tenders.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	changes := Reconcile(records, snapshot)
	stats.Unchanged = changes.Unchanged
	i.logger.Printf("Stored tenders: %d, new: %d, changed status: %d, unchanged: %d",
		len(snapshot), len(changes.Insert), len(changes.Upsert), changes.Unchanged)

	inserted, err := i.apply(ctx, "Inserting", changes.Insert, stats)
	stats.Inserted = inserted
	if err != nil {
		return stats, err
	}

	upserted, err := i.apply(ctx, "Updating", changes.Upsert, stats)
	stats.Upserted = upserted
	if err != nil {
		return stats, err
	}

	if err := i.fetches.SaveFetches(ctx, stats.RunID, provenance); err != nil {
		return stats, err
	}
	stats.Fetches = len(provenance)

	return stats, nil
}

func (i *Importer) apply(ctx context.Context, verb string, batch []model.Listing, stats *LoadStats) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	i.logger.Printf("%s %d tenders into %s...", verb, len(batch), i.tenders.Table())
	result, err := i.tenders.Apply(ctx, batch)
	for _, f := range result.Failures {
		i.errLogger.Printf("%v", f)
	}
	stats.Failed += len(result.Failures)
	if err != nil {
		return result.Applied, fmt.Errorf("failed to apply batch: %w", err)
	}
	return result.Applied, nil
}

// SyncStats holds the statistics of a full run
type SyncStats struct {
	Extract   *ExtractStats
	Transform *TransformStats
	Load      *LoadStats
	Metrics   *SystemMetrics
}

// Sync runs extract, transform and load for the given range, then records metrics
func (i *Importer) Sync(ctx context.Context, start, end time.Time) (*SyncStats, error) {
	stats := &SyncStats{}
	var err error

	i.logger.Println("Starting extraction process...")
	stats.Extract, err = i.Extract(ctx, start, end)
	if err != nil {
		return stats, err
	}
	i.PrintExtractSummary(stats.Extract)

	i.logger.Println("Starting transform process...")
	stats.Transform, err = i.Transform(ctx)
	if err != nil {
		return stats, err
	}
	i.PrintTransformSummary(stats.Transform)

	i.logger.Println("Starting loading process...")
	stats.Load, err = i.Load(ctx)
	if err != nil {
		return stats, err
	}
	i.PrintLoadSummary(stats.Load)

	stats.Metrics = i.RecordMetrics(ctx, stats.Load)
	return stats, nil
}

// RecordMetrics stores metrics for a finished load. Failures are logged, not returned.
func (i *Importer) RecordMetrics(ctx context.Context, load *LoadStats) *SystemMetrics {
	if i.metrics == nil || load == nil {
		return nil
	}

	m, err := i.metrics.CalculateAndStore(ctx, load.RunID, load)
	if err != nil {
		i.errLogger.Printf("Failed to calculate metrics: %v", err)
		return nil
	}
	i.PrintMetricsSummary(m)
	return m
}

// PrintExtractSummary prints the download statistics
func (i *Importer) PrintExtractSummary(stats *ExtractStats) {
	i.logger.Println("")
	i.logger.Println("=== Extract Summary ===")
	i.logger.Printf("Days requested:  %d", stats.Days)
	i.logger.Printf("Succeeded:       %d", stats.Succeeded)
	i.logger.Printf("Failed:          %d", stats.Failed)
	i.logger.Printf("Records:         %d", stats.Records)
}

// PrintTransformSummary prints the normalization statistics
func (i *Importer) PrintTransformSummary(stats *TransformStats) {
	i.logger.Println("")
	i.logger.Println("=== Transform Summary ===")
	i.logger.Printf("Rows read:       %d", stats.Input)
	i.logger.Printf("Incomplete:      %d", stats.Incomplete)
	i.logger.Printf("Duplicates:      %d", stats.Duplicates)
	i.logger.Printf("Rows written:    %d", stats.Output)
	i.logger.Printf("Fetch rows:      %d", stats.Provenance)
}

// PrintLoadSummary prints the store write statistics
func (i *Importer) PrintLoadSummary(stats *LoadStats) {
	i.logger.Println("")
	i.logger.Println("=== Load Summary ===")
	i.logger.Printf("Run:             %s", stats.RunID)
	i.logger.Printf("Total records:   %d", stats.Total)
	i.logger.Printf("Inserted:        %d", stats.Inserted)
	i.logger.Printf("Updated:         %d", stats.Upserted)
	i.logger.Printf("Unchanged:       %d", stats.Unchanged)
	i.logger.Printf("Failed:          %d", stats.Failed)
}

// PrintMetricsSummary prints the metrics stored for a run
func (i *Importer) PrintMetricsSummary(m *SystemMetrics) {
	i.logger.Println("")
	i.logger.Println("=== System Metrics ===")
	i.logger.Printf("Total tenders:   %d", m.TotalTenders)
	i.logger.Printf("Failed fetches:  %d", m.FailedFetches)
	for name, count := range m.ByStatus {
		i.logger.Printf("Status %-10s %d", name+":", count)
	}
}
