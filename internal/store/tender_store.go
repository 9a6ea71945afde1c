package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/jjenkins/tenders/internal/model"
)

var tenderColumns = []string{
	"codigo_externo", "nombre", "codigo_estado", "estado", "fecha_cierre", "fecha_publicacion",
}

// upsertSuffix overwrites every mutable field when the external code already exists
const upsertSuffix = `ON CONFLICT (codigo_externo) DO UPDATE SET
	nombre = EXCLUDED.nombre,
	codigo_estado = EXCLUDED.codigo_estado,
	estado = EXCLUDED.estado,
	fecha_cierre = EXCLUDED.fecha_cierre,
	fecha_publicacion = EXCLUDED.fecha_publicacion`

// StoreWriteError reports a single record that could not be persisted
type StoreWriteError struct {
	Code     string
	SQLState string
	Err      error
}

func (e *StoreWriteError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("failed to write tender %q (sqlstate %s): %v", e.Code, e.SQLState, e.Err)
	}
	return fmt.Sprintf("failed to write tender %q: %v", e.Code, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// ApplyResult summarizes one write pass
type ApplyResult struct {
	Applied  int
	Failures []*StoreWriteError
}

// TenderStore handles database operations for the tender index table
type TenderStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewTenderStore creates a new TenderStore writing to table
func NewTenderStore(db *sql.DB, dialect Dialect, table string) *TenderStore {
	return &TenderStore{db: db, dialect: dialect, table: table}
}

// Table returns the target table name
func (s *TenderStore) Table() string {
	return s.table
}

// EnsureSchema creates the tender table if it does not exist
func (s *TenderStore) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case SQLite:
		ddl = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				codigo_externo TEXT NOT NULL PRIMARY KEY CHECK (codigo_externo <> ''),
				nombre TEXT,
				codigo_estado INTEGER,
				estado TEXT,
				fecha_cierre TIMESTAMP,
				fecha_publicacion DATE
			)`, quote(s.table))
	default:
		ddl = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id SERIAL NOT NULL,
				codigo_externo character varying(40) NOT NULL,
				nombre text,
				codigo_estado integer,
				estado character varying(20),
				fecha_cierre timestamp without time zone,
				fecha_publicacion date,
				CONSTRAINT %s PRIMARY KEY (codigo_externo),
				CONSTRAINT %s CHECK (codigo_externo <> '')
			)`, quote(s.table), quote(s.table+"_pkey"), quote(s.table+"_code_not_empty"))
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Snapshot returns the stored status code of every tender, keyed by external code
func (s *TenderStore) Snapshot(ctx context.Context) (map[string]sql.NullInt64, error) {
	query, args, err := s.dialect.builder().
		Select("codigo_externo", "codigo_estado").
		From(quote(s.table)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored tenders: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]sql.NullInt64)
	for rows.Next() {
		var code string
		var status sql.NullInt64
		if err := rows.Scan(&code, &status); err != nil {
			return nil, fmt.Errorf("failed to scan stored tender: %w", err)
		}
		snapshot[code] = status
	}

	return snapshot, rows.Err()
}

// Apply inserts each listing, or updates every mutable field when its code
// already exists. Every record is written in its own transaction so a failing
// record is rolled back and reported without aborting the rest of the batch.
// The returned error is non-nil only when ctx is cancelled.
func (s *TenderStore) Apply(ctx context.Context, batch []model.Listing) (*ApplyResult, error) {
	result := &ApplyResult{}

	for _, listing := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := s.applyOne(ctx, listing); err != nil {
			writeErr := &StoreWriteError{Code: listing.Code(), Err: err}
			var pqErr *pq.Error
			if errors.As(err, &pqErr) {
				writeErr.SQLState = string(pqErr.Code)
			}
			result.Failures = append(result.Failures, writeErr)
			continue
		}
		result.Applied++
	}

	return result, nil
}

func (s *TenderStore) applyOne(ctx context.Context, l model.Listing) error {
	query, args, err := s.dialect.builder().
		Insert(quote(s.table)).
		Columns(tenderColumns...).
		Values(l.ExternalCode, l.Title, l.StatusCode, l.StatusLabel, l.CloseDate, l.PublicationDate).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *TenderStore) selectTenders() sq.SelectBuilder {
	return s.dialect.builder().
		Select(append([]string{s.dialect.idColumn()}, tenderColumns...)...).
		From(quote(s.table))
}

func scanTender(row sq.RowScanner) (model.Tender, error) {
	var t model.Tender
	err := row.Scan(
		&t.ID,
		&t.ExternalCode,
		&t.Title,
		&t.StatusCode,
		&t.StatusLabel,
		&t.CloseDate,
		&t.PublicationDate,
	)
	return t, err
}

// GetByCode retrieves a tender by its external code
func (s *TenderStore) GetByCode(ctx context.Context, code string) (*model.Tender, error) {
	query, args, err := s.selectTenders().Where(sq.Eq{"codigo_externo": code}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	t, err := scanTender(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tender %s: %w", code, err)
	}

	return &t, nil
}

// ListOptions controls GetAllSorted
type ListOptions struct {
	SortBy     string
	Order      string
	StatusCode int64 // 0 means every status
	Limit      uint64
}

// GetAllSorted retrieves tenders with custom sorting and an optional status filter
func (s *TenderStore) GetAllSorted(ctx context.Context, opts ListOptions) ([]model.Tender, error) {
	// Whitelist valid sort columns to prevent SQL injection
	validColumns := map[string]string{
		"code":      "codigo_externo",
		"title":     "nombre",
		"status":    "codigo_estado",
		"closes":    "fecha_cierre",
		"published": "fecha_publicacion",
	}

	column, ok := validColumns[opts.SortBy]
	if !ok {
		column = "fecha_publicacion"
	}

	sortOrder := "ASC"
	if opts.Order == "desc" {
		sortOrder = "DESC"
	}

	builder := s.selectTenders().OrderBy(column+" "+sortOrder, "codigo_externo ASC")
	if opts.StatusCode != 0 {
		builder = builder.Where(sq.Eq{"codigo_estado": opts.StatusCode})
	}
	if opts.Limit > 0 {
		builder = builder.Limit(opts.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenders: %w", err)
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tender: %w", err)
		}
		tenders = append(tenders, t)
	}

	return tenders, rows.Err()
}

// CountTenders returns the total number of stored tenders
func (s *TenderStore) CountTenders(ctx context.Context) (int, error) {
	query, args, err := s.dialect.builder().Select("COUNT(*)").From(quote(s.table)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tenders: %w", err)
	}
	return count, nil
}

// CountByStatus returns the number of stored tenders per status code
func (s *TenderStore) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	query, args, err := s.dialect.builder().
		Select("codigo_estado", "COALESCE(estado, '')", "COUNT(*)").
		From(quote(s.table)).
		Where(sq.NotEq{"codigo_estado": nil}).
		GroupBy("codigo_estado", "estado").
		OrderBy("codigo_estado").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count tenders by status: %w", err)
	}
	defer rows.Close()

	var counts []model.StatusCount
	for rows.Next() {
		var c model.StatusCount
		if err := rows.Scan(&c.StatusCode, &c.StatusLabel, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
