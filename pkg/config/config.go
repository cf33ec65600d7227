package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when it exists and no explicit path is given.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for ekaya-gateway.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, connection strings) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Pooled is the PostgreSQL backend.
	Pooled PooledConfig `yaml:"pooled"`

	// ODBC is the optional SQL Server backend.
	ODBC ODBCConfig `yaml:"odbc"`

	Query QueryConfig `yaml:"query"`

	MCP MCPConfig `yaml:"mcp"`
}

// PooledConfig holds PostgreSQL connection and pool configuration.
type PooledConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"gateway"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"gateway"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// URL overrides the discrete fields when set.
	URL string `yaml:"-" env:"DATABASE_URL"` // Secret - may embed a password

	PoolMinConns   int           `yaml:"pool_min_conns" env:"POOL_MIN_CONNS" env-default:"1"`
	PoolMaxConns   int           `yaml:"pool_max_conns" env:"POOL_MAX_CONNS" env-default:"10"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"POOL_ACQUIRE_TIMEOUT" env-default:"5s"`
}

// ODBCConfig holds SQL Server configuration. The backend is disabled when
// neither a connection string nor a host is set.
type ODBCConfig struct {
	ConnString string `yaml:"-" env:"MSSQL_CONN_STR"` // Secret - not in YAML

	Host                   string `yaml:"host" env:"MSSQL_HOST"`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	Database               string `yaml:"database" env:"MSSQL_DATABASE"`
	User                   string `yaml:"user" env:"MSSQL_USER"`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"false"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERT" env-default:"false"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"MSSQL_CONNECT_TIMEOUT" env-default:"10s"`
}

// Configured reports whether the SQL Server backend is enabled.
func (o *ODBCConfig) Configured() bool {
	return o.ConnString != "" || o.Host != ""
}

// QueryConfig holds query execution and pagination limits.
type QueryConfig struct {
	// MaxPageSize caps page_size; larger requests are clamped, not rejected.
	MaxPageSize int `yaml:"max_page_size" env:"MAX_RESULTS" env-default:"50"`
	// DefaultPageSize applies when a request omits page_size. Zero means MaxPageSize.
	DefaultPageSize int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE" env-default:"0"`

	StatementTimeout time.Duration `yaml:"statement_timeout" env:"QUERY_TIMEOUT" env-default:"30s"`
	CountTimeout     time.Duration `yaml:"count_timeout" env:"COUNT_TIMEOUT" env-default:"5s"`

	// ExactCounts runs a COUNT(*) probe per page request. When false,
	// total_records is reported as unknown.
	ExactCounts bool `yaml:"exact_counts" env:"EXACT_COUNTS" env-default:"true"`
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration with environment variable overrides.
// path names a YAML file; when empty, config.yaml is used if it exists and
// the environment alone otherwise. The version is set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Query.DefaultPageSize <= 0 || cfg.Query.DefaultPageSize > cfg.Query.MaxPageSize {
		cfg.Query.DefaultPageSize = cfg.Query.MaxPageSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks limits and the TLS pairing.
func (c *Config) Validate() error {
	var errs []error

	if c.Pooled.PoolMaxConns < 1 {
		errs = append(errs, fmt.Errorf("pool_max_conns must be at least 1"))
	}
	if c.Pooled.PoolMinConns < 0 || c.Pooled.PoolMinConns > c.Pooled.PoolMaxConns {
		errs = append(errs, fmt.Errorf("pool_min_conns must be between 0 and pool_max_conns"))
	}
	if c.Pooled.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("acquire_timeout must be positive"))
	}
	if c.ODBC.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive"))
	}
	if c.Query.MaxPageSize < 1 {
		errs = append(errs, fmt.Errorf("max_page_size must be at least 1"))
	}
	if c.Query.StatementTimeout <= 0 {
		errs = append(errs, fmt.Errorf("statement_timeout must be positive"))
	}
	if c.Query.CountTimeout <= 0 {
		errs = append(errs, fmt.Errorf("count_timeout must be positive"))
	}
	if err := c.validateTLS(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// Readability is checked by tls.LoadX509KeyPair at startup
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}
