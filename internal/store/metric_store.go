package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MetricStore records name/value metrics produced by each load run
type MetricStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewMetricStore creates a MetricStore next to the given tender table
func NewMetricStore(db *sql.DB, dialect Dialect, tenderTable string) *MetricStore {
	return &MetricStore{db: db, dialect: dialect, table: tenderTable + "_metrics"}
}

// EnsureSchema creates the metrics table if it does not exist
func (s *MetricStore) EnsureSchema(ctx context.Context) error {
	timestampType := "timestamp without time zone"
	if s.dialect == SQLite {
		timestampType = "TIMESTAMP"
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			metric_name text NOT NULL,
			metric_value text NOT NULL,
			run_id text NOT NULL,
			calculated_at %s NOT NULL
		)`, quote(s.table), timestampType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Store inserts a single metric value
func (s *MetricStore) Store(ctx context.Context, runID, name, value string, at time.Time) error {
	query, args, err := s.dialect.builder().
		Insert(quote(s.table)).
		Columns("metric_name", "metric_value", "run_id", "calculated_at").
		Values(name, value, runID, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build metric insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store metric %s: %w", name, err)
	}
	return nil
}

// Latest returns the metrics written by the most recent run
func (s *MetricStore) Latest(ctx context.Context) (map[string]string, error) {
	query := fmt.Sprintf(`
		SELECT metric_name, metric_value
		FROM %[1]s
		WHERE run_id = (SELECT run_id FROM %[1]s ORDER BY calculated_at DESC LIMIT 1)
	`, quote(s.table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[name] = value
	}

	return metrics, rows.Err()
}
