package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jjenkins/tenders/internal/store"
)

// MetricsService calculates and stores per-run metrics
type MetricsService struct {
	tenders *store.TenderStore
	fetches *store.FetchStore
	metrics *store.MetricStore
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(tenders *store.TenderStore, fetches *store.FetchStore, metrics *store.MetricStore) *MetricsService {
	return &MetricsService{tenders: tenders, fetches: fetches, metrics: metrics}
}

// SystemMetrics represents the state of the store after a load
type SystemMetrics struct {
	TotalTenders  int
	ByStatus      map[string]int
	FailedFetches int
	Inserted      int
	Upserted      int
	WriteFailures int
}

// CalculateAndStore calculates metrics for the run and stores them under runID
func (m *MetricsService) CalculateAndStore(ctx context.Context, runID string, load *LoadStats) (*SystemMetrics, error) {
	metrics := &SystemMetrics{ByStatus: make(map[string]int)}

	if err := m.metrics.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	total, err := m.tenders.CountTenders(ctx)
	if err != nil {
		return nil, err
	}
	metrics.TotalTenders = total

	counts, err := m.tenders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		metrics.ByStatus[statusMetricName(c.StatusCode, c.StatusLabel)] = c.Count
	}

	failed, err := m.fetches.CountFailed(ctx)
	if err != nil {
		return nil, err
	}
	metrics.FailedFetches = failed

	if load != nil {
		metrics.Inserted = load.Inserted
		metrics.Upserted = load.Upserted
		metrics.WriteFailures = load.Failed
	}

	now := time.Now()
	values := map[string]string{
		"total_tenders":  strconv.Itoa(metrics.TotalTenders),
		"failed_fetches": strconv.Itoa(metrics.FailedFetches),
		"inserted":       strconv.Itoa(metrics.Inserted),
		"upserted":       strconv.Itoa(metrics.Upserted),
		"write_failures": strconv.Itoa(metrics.WriteFailures),
	}
	for name, count := range metrics.ByStatus {
		values["status_"+name] = strconv.Itoa(count)
	}

	for name, value := range values {
		if err := m.metrics.Store(ctx, runID, name, value, now); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

// GetLatestMetrics retrieves the metrics of the most recent run
func (m *MetricsService) GetLatestMetrics(ctx context.Context) (map[string]string, error) {
	return m.metrics.Latest(ctx)
}

func statusMetricName(code int64, label string) string {
	if label == "" {
		return fmt.Sprintf("%d", code)
	}
	return fmt.Sprintf("%d_%s", code, label)
}
