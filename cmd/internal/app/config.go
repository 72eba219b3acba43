package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"IDENTD_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"IDENTD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"IDENTD_LOG_FORMAT" envDefault:"json"` // json | pretty

	ReadHeaderTimeout time.Duration `env:"IDENTD_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"IDENTD_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"IDENTD_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDENTD_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"IDENTD_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// DatabaseURL selects Postgres. When empty the SQLite store at SQLitePath is used.
	DatabaseURL    string `env:"IDENTD_DATABASE_URL"`
	DBMaxConns     int32  `env:"IDENTD_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32  `env:"IDENTD_DB_MIN_CONNS" envDefault:"0"`
	DBSchema       string `env:"IDENTD_DB_SCHEMA" envDefault:"identd"`
	DBEnsureSchema bool   `env:"IDENTD_DB_ENSURE_SCHEMA" envDefault:"false"`

	DBPingTimeout time.Duration `env:"IDENTD_DB_PING_TIMEOUT" envDefault:"3s"`

	SQLitePath string `env:"IDENTD_SQLITE_PATH" envDefault:":memory:"`

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool `env:"IDENTD_READINESS_REQUIRE_DB" envDefault:"false"`

	IssueMaxAttempts int `env:"IDENTD_ISSUE_MAX_ATTEMPTS" envDefault:"3"`
}

// LoadConfig loads Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom loads Config from the given variables instead of the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot use.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: IDENTD_LOG_FORMAT must be json or pretty, got %q", c.LogFormat)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 {
		return fmt.Errorf("config: db connection limits must not be negative")
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("config: IDENTD_DB_MIN_CONNS exceeds IDENTD_DB_MAX_CONNS")
	}
	if c.IssueMaxAttempts <= 0 {
		return fmt.Errorf("config: IDENTD_ISSUE_MAX_ATTEMPTS must be positive")
	}
	if c.DatabaseURL == "" && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("config: one of IDENTD_DATABASE_URL or IDENTD_SQLITE_PATH is required")
	}
	return nil
}
