package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, dbDriverEnv, dbURLEnv, dbHostEnv, dbPortEnv, dbNameEnv,
		dbUserEnv, dbPasswordEnv, dbSSLModeEnv, tableEnv, ticketEnv, sourceURLEnv,
		rawDirEnv, interimDirEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "tender_index_list", cfg.Database.Table)
	assert.Equal(t, 10, cfg.Source.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Source.RetryInterval)
	assert.Equal(t, time.Second, cfg.Source.RequestDelay)
	assert.Equal(t, "./data/raw", cfg.Staging.RawDir)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tenders.yaml")
	yamlDoc := `
database:
  driver: sqlite3
  url: /tmp/file.db
  table: from_file
source:
  ticket: file-ticket
  retryInterval: 250ms
  maxAttempts: 3
staging:
  rawDir: /data/raw
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv(tableEnv, "from_env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "from_env", cfg.Database.Table)
	assert.Equal(t, "file-ticket", cfg.Source.Ticket)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.RetryInterval)
	assert.Equal(t, 3, cfg.Source.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Source.RequestDelay, "unset values keep defaults")
	assert.Equal(t, "/data/raw", cfg.Staging.RawDir)
	assert.Equal(t, "./data/interim", cfg.Staging.InterimDir)
}

func TestLoad_UnreadableFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, configPathEnv, cfgErr.Field)
}

func TestValidateSource_RequiresTicket(t *testing.T) {
	cfg := Default()

	err := cfg.ValidateSource()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "source.ticket", cfgErr.Field)

	cfg.Source.Ticket = "abc"
	assert.NoError(t, cfg.ValidateSource())
}

func TestValidateSource_MaxAttemptsBounds(t *testing.T) {
	for _, attempts := range []int{0, -1, MaxAttemptsLimit + 1, 25} {
		cfg := Default()
		cfg.Source.Ticket = "abc"
		cfg.Source.MaxAttempts = attempts

		var cfgErr *ConfigurationError
		require.True(t, errors.As(cfg.ValidateSource(), &cfgErr), "attempts=%d", attempts)
		assert.Equal(t, "source.maxAttempts", cfgErr.Field)
	}

	cfg := Default()
	cfg.Source.Ticket = "abc"
	cfg.Source.MaxAttempts = MaxAttemptsLimit
	assert.NoError(t, cfg.ValidateSource())
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		want    string
		wantErr bool
	}{
		{
			name: "postgres from parts",
			db:   DatabaseConfig{Driver: "postgres", Host: "db", Port: "5433", Name: "tenders", User: "etl", Password: "p@ss", SSLMode: "disable"},
			want: "postgres://etl:p%40ss@db:5433/tenders?sslmode=disable",
		},
		{
			name: "postgres url wins",
			db:   DatabaseConfig{Driver: "postgres", URL: "postgres://x@y/z", Name: "ignored", User: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name:    "postgres missing credentials",
			db:      DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432"},
			wantErr: true,
		},
		{
			name: "sqlite path",
			db:   DatabaseConfig{Driver: "sqlite3", URL: "tenders.db"},
			want: "tenders.db",
		},
		{
			name:    "unknown driver",
			db:      DatabaseConfig{Driver: "mysql", URL: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.db.DSN()
			if tt.wantErr {
				var cfgErr *ConfigurationError
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
