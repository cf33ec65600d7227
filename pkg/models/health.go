package models

import "time"

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// DatabaseStatus reports reachability per backend.
type DatabaseStatus struct {
	Pooled bool `json:"pooled"`
	ODBC   bool `json:"odbc"`
}

// HealthReport is the result of one health probe round.
type HealthReport struct {
	Status         string         `json:"status"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	DatabaseStatus DatabaseStatus `json:"database_status"`
}
