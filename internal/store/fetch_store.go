package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jjenkins/tenders/internal/model"
)

// FetchStore persists per-day fetch provenance for auditing
type FetchStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewFetchStore creates a FetchStore next to the given tender table
func NewFetchStore(db *sql.DB, dialect Dialect, tenderTable string) *FetchStore {
	return &FetchStore{db: db, dialect: dialect, table: tenderTable + "_fetches"}
}

// EnsureSchema creates the fetch audit table if it does not exist
func (s *FetchStore) EnsureSchema(ctx context.Context) error {
	timestampType := "timestamp without time zone"
	if s.dialect == SQLite {
		timestampType = "TIMESTAMP"
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			fecha_publicacion date NOT NULL PRIMARY KEY,
			cantidad integer,
			fecha_creacion text,
			version text,
			response_status_code integer,
			number_orders integer,
			attempts integer,
			run_id text,
			recorded_at %s
		)`, quote(s.table), timestampType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// SaveFetches upserts one row per publication day, replacing what an
// earlier run stored for the same day.
func (s *FetchStore) SaveFetches(ctx context.Context, runID string, rows []model.Provenance) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range rows {
		query, args, err := s.dialect.builder().
			Insert(quote(s.table)).
			Columns("fecha_publicacion", "cantidad", "fecha_creacion", "version",
				"response_status_code", "number_orders", "attempts", "run_id", "recorded_at").
			Values(p.PublicationDate, p.ItemCount, p.CreatedAt, p.Version,
				p.ResponseStatus, p.NumberOrders, p.Attempts, runID, now).
			Suffix(`ON CONFLICT (fecha_publicacion) DO UPDATE SET
				cantidad = EXCLUDED.cantidad,
				fecha_creacion = EXCLUDED.fecha_creacion,
				version = EXCLUDED.version,
				response_status_code = EXCLUDED.response_status_code,
				number_orders = EXCLUDED.number_orders,
				attempts = EXCLUDED.attempts,
				run_id = EXCLUDED.run_id,
				recorded_at = EXCLUDED.recorded_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build fetch upsert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to save fetch for %s: %w", p.PublicationDate.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRecent retrieves the most recent fetch rows ordered by publication date descending
func (s *FetchStore) GetRecent(ctx context.Context, limit uint64) ([]model.FetchLog, error) {
	builder := s.dialect.builder().
		Select("fecha_publicacion", "cantidad", "COALESCE(fecha_creacion, '')", "COALESCE(version, '')",
			"response_status_code", "number_orders", "attempts", "COALESCE(run_id, '')", "recorded_at").
		From(quote(s.table)).
		OrderBy("fecha_publicacion DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetches: %w", err)
	}
	defer rows.Close()

	var logs []model.FetchLog
	for rows.Next() {
		var f model.FetchLog
		err := rows.Scan(
			&f.PublicationDate,
			&f.ItemCount,
			&f.CreatedAt,
			&f.Version,
			&f.ResponseStatus,
			&f.NumberOrders,
			&f.Attempts,
			&f.RunID,
			&f.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetch: %w", err)
		}
		logs = append(logs, f)
	}

	return logs, rows.Err()
}

// CountFailed returns the number of days whose last fetch did not succeed
func (s *FetchStore) CountFailed(ctx context.Context) (int, error) {
	query, args, err := s.dialect.builder().
		Select("COUNT(*)").
		From(quote(s.table)).
		Where("response_status_code <> ?", 200).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed fetches: %w", err)
	}
	return count, nil
}
