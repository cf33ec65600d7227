package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
)

const (
	DefaultPort    = 5432
	DefaultSSLMode = "require"
)

// Config contains PostgreSQL connection and pool options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"

	// URL, when set, is used verbatim instead of the discrete fields.
	URL string

	MinConns int
	MaxConns int
}

// ConnString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? do not break parsing. Inside a container, localhost resolves to
// host.docker.internal to reach databases on the host machine.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		port,
		url.QueryEscape(c.Database),
		sslMode,
	)
}
