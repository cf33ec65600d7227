package models

import "strings"

// Backend identifies one of the relational engines reachable by the gateway.
type Backend string

const (
	// BackendPooled is the networked engine reached through a bounded connection pool (PostgreSQL).
	BackendPooled Backend = "pooled"
	// BackendODBC is the engine reached through a per-call driver connection (SQL Server).
	BackendODBC Backend = "odbc"
)

// AllBackends lists the backends in reporting order.
var AllBackends = []Backend{BackendPooled, BackendODBC}

var backendAliases = map[string]Backend{
	"pooled":     BackendPooled,
	"postgres":   BackendPooled,
	"postgresql": BackendPooled,
	"odbc":       BackendODBC,
	"mssql":      BackendODBC,
	"sqlserver":  BackendODBC,
}

// ParseBackend resolves a caller-supplied backend name, accepting the
// engine aliases callers historically used. Returns false for anything else.
func ParseBackend(name string) (Backend, bool) {
	b, ok := backendAliases[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

func (b Backend) String() string {
	return string(b)
}
