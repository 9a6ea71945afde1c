package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxAttemptsLimit bounds the requests issued for a single day.
const MaxAttemptsLimit = 10

const (
	configPathEnv   = "TENDERS_CONFIG"
	dbDriverEnv     = "DATABASE_DRIVER"
	dbURLEnv        = "DATABASE_URL"
	dbHostEnv       = "DB_HOST"
	dbPortEnv       = "DB_PORT"
	dbNameEnv       = "DB_NAME"
	dbUserEnv       = "DB_USER"
	dbPasswordEnv   = "DB_PASSWORD"
	dbSSLModeEnv    = "DB_SSLMODE"
	tableEnv        = "TENDERS_TABLE"
	ticketEnv       = "MERCADO_PUBLICO_TICKET"
	sourceURLEnv    = "MERCADO_PUBLICO_URL"
	rawDirEnv       = "TENDERS_RAW_DIR"
	interimDirEnv   = "TENDERS_INTERIM_DIR"
	defaultBaseURL  = "https://api.mercadopublico.cl/servicios/v1/publico/licitaciones.json"
	defaultTable    = "tender_index_list"
	defaultDriver   = "postgres"
)

// ConfigurationError reports missing or invalid settings. It is always fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Config holds every setting needed by the pipeline stages.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Staging  StagingConfig  `yaml:"staging"`
}

// DatabaseConfig describes the durable store connection.
// URL wins over the individual host/port/name fields when set.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Table    string `yaml:"table"`
}

// SourceConfig describes the remote listing API and its courtesy limits.
type SourceConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Ticket        string        `yaml:"ticket"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	RequestDelay  time.Duration `yaml:"requestDelay"`
	Timeout       time.Duration `yaml:"timeout"`
}

// StagingConfig locates the staged dataset directories.
type StagingConfig struct {
	RawDir     string `yaml:"rawDir"`
	InterimDir string `yaml:"interimDir"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, &ConfigurationError{Field: configPathEnv, Reason: err.Error()}
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return cfg, &ConfigurationError{Field: configPathEnv, Reason: fmt.Sprintf("cannot parse %s: %v", path, err)}
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:  defaultDriver,
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
			Table:   defaultTable,
		},
		Source: SourceConfig{
			BaseURL:       defaultBaseURL,
			MaxAttempts:   MaxAttemptsLimit,
			RetryInterval: time.Second,
			RequestDelay:  time.Second,
			Timeout:       60 * time.Second,
		},
		Staging: StagingConfig{
			RawDir:     "./data/raw",
			InterimDir: "./data/interim",
		},
	}
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{dbDriverEnv, &c.Database.Driver},
		{dbURLEnv, &c.Database.URL},
		{dbHostEnv, &c.Database.Host},
		{dbPortEnv, &c.Database.Port},
		{dbNameEnv, &c.Database.Name},
		{dbUserEnv, &c.Database.User},
		{dbPasswordEnv, &c.Database.Password},
		{dbSSLModeEnv, &c.Database.SSLMode},
		{tableEnv, &c.Database.Table},
		{ticketEnv, &c.Source.Ticket},
		{sourceURLEnv, &c.Source.BaseURL},
		{rawDirEnv, &c.Staging.RawDir},
		{interimDirEnv, &c.Staging.InterimDir},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func mergeConfig(base, override Config) Config {
	mergeString(&base.Database.Driver, override.Database.Driver)
	mergeString(&base.Database.URL, override.Database.URL)
	mergeString(&base.Database.Host, override.Database.Host)
	mergeString(&base.Database.Port, override.Database.Port)
	mergeString(&base.Database.Name, override.Database.Name)
	mergeString(&base.Database.User, override.Database.User)
	mergeString(&base.Database.Password, override.Database.Password)
	mergeString(&base.Database.SSLMode, override.Database.SSLMode)
	mergeString(&base.Database.Table, override.Database.Table)

	mergeString(&base.Source.BaseURL, override.Source.BaseURL)
	mergeString(&base.Source.Ticket, override.Source.Ticket)
	if override.Source.MaxAttempts > 0 {
		base.Source.MaxAttempts = override.Source.MaxAttempts
	}
	if override.Source.RetryInterval > 0 {
		base.Source.RetryInterval = override.Source.RetryInterval
	}
	if override.Source.RequestDelay > 0 {
		base.Source.RequestDelay = override.Source.RequestDelay
	}
	if override.Source.Timeout > 0 {
		base.Source.Timeout = override.Source.Timeout
	}

	mergeString(&base.Staging.RawDir, override.Staging.RawDir)
	mergeString(&base.Staging.InterimDir, override.Staging.InterimDir)

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ValidateSource checks the settings needed before any network activity.
func (c Config) ValidateSource() error {
	if c.Source.Ticket == "" {
		return &ConfigurationError{Field: "source.ticket", Reason: ticketEnv + " is required"}
	}
	if _, err := url.ParseRequestURI(c.Source.BaseURL); err != nil {
		return &ConfigurationError{Field: "source.baseUrl", Reason: err.Error()}
	}
	if c.Source.MaxAttempts <= 0 || c.Source.MaxAttempts > MaxAttemptsLimit {
		return &ConfigurationError{Field: "source.maxAttempts", Reason: fmt.Sprintf("must be between 1 and %d", MaxAttemptsLimit)}
	}
	return nil
}

// ValidateDatabase checks the settings needed before any store activity.
func (c Config) ValidateDatabase() error {
	if _, err := c.Database.DSN(); err != nil {
		return err
	}
	if c.Database.Table == "" {
		return &ConfigurationError{Field: "database.table", Reason: "must not be empty"}
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() (string, error) {
	switch d.Driver {
	case "sqlite3":
		if d.URL == "" {
			return "", &ConfigurationError{Field: "database.url", Reason: "sqlite3 needs a database file path"}
		}
		return d.URL, nil
	case "postgres":
		if d.URL != "" {
			return d.URL, nil
		}
		if d.Name == "" || d.User == "" {
			return "", &ConfigurationError{Field: "database", Reason: dbURLEnv + " or " + dbNameEnv + "/" + dbUserEnv + " are required"}
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     net.JoinHostPort(d.Host, d.Port),
			Path:     "/" + d.Name,
			RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
		}
		return u.String(), nil
	default:
		return "", &ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", d.Driver)}
	}
}

// Describe logs the effective, non-secret settings.
func (c Config) Describe(logger *log.Logger) {
	logger.Printf("Source:   %s (max %d attempts, retry %s, delay %s)",
		c.Source.BaseURL, c.Source.MaxAttempts, c.Source.RetryInterval, c.Source.RequestDelay)
	logger.Printf("Staging:  raw=%s interim=%s", c.Staging.RawDir, c.Staging.InterimDir)
	logger.Printf("Database: %s table=%s", c.Database.Driver, c.Database.Table)
}
