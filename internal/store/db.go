package store

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between the supported databases
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a database/sql driver name to its Dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Driver returns the database/sql driver name
func (d Dialect) Driver() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (d Dialect) builder() sq.StatementBuilderType {
	if d == SQLite {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// idColumn is the surrogate key expression; SQLite exposes it as rowid
func (d Dialect) idColumn() string {
	if d == SQLite {
		return "rowid"
	}
	return "id"
}

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// NewDB opens and verifies a database connection
func NewDB(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == SQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}
