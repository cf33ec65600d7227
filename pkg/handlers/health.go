package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// ConnectionStatsProvider reports lease statistics. Implemented by
// datasource.ConnectionManager.
type ConnectionStatsProvider interface {
	GetStats() datasource.ConnectionStats
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string                      `json:"status"`
	Version     string                      `json:"version"`
	Service     string                      `json:"service"`
	GoVersion   string                      `json:"go_version"`
	Hostname    string                      `json:"hostname"`
	Environment string                      `json:"environment"`
	Connections *datasource.ConnectionStats `json:"connections,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	health services.HealthService
	stats  ConnectionStatsProvider
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. stats may be nil.
func NewHealthHandler(cfg *config.Config, health services.HealthService, stats ConnectionStatsProvider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, health: health, stats: stats, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Responds 503 when the pooled database is unreachable so load balancers
// stop routing to this instance.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}

	if err := WriteJSON(w, status, report); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version, environment and lease statistics.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-gateway",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if h.stats != nil {
		stats := h.stats.GetStats()
		response.Connections = &stats
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
