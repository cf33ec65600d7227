package mssql

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
)

const (
	DefaultPort           = 1433
	DefaultConnectTimeout = 10 * time.Second
)

// Config contains SQL Server connection options. ConnString wins when set;
// otherwise a SQL-authentication URL is built from the discrete fields.
type Config struct {
	ConnString string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool

	// ConnectTimeout bounds opening each per-call connection.
	ConnectTimeout time.Duration
}

// Configured reports whether enough is set to reach a server.
func (c *Config) Configured() bool {
	return c != nil && (c.ConnString != "" || c.Host != "")
}

// DSN returns the driver connection string.
func (c *Config) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}

	query := url.Values{}
	if c.Database != "" {
		query.Add("database", c.Database)
	}
	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		port,
		query.Encode(),
	)
}
