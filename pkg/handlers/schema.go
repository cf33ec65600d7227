package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// SchemaHandler serves schema discovery and summaries.
type SchemaHandler struct {
	schemaService services.SchemaService
	logger        *zap.Logger
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(schemaService services.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService, logger: logger}
}

// RegisterRoutes registers the schema routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schema", h.Discover)
	mux.HandleFunc("GET /api/schema/summary", h.Summary)
}

// Discover handles GET /api/schema?db=.
func (h *SchemaHandler) Discover(w http.ResponseWriter, r *http.Request) {
	backend, err := services.ParseBackendName(r.URL.Query().Get("db"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	columns, err := h.schemaService.Discover(r.Context(), backend)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, services.SchemaResponseBody(backend, columns)); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}

// Summary handles GET /api/schema/summary?db=&prefix=.
func (h *SchemaHandler) Summary(w http.ResponseWriter, r *http.Request) {
	backend, err := services.ParseBackendName(r.URL.Query().Get("db"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	prefix := r.URL.Query().Get("prefix")

	summary, err := h.schemaService.Summarize(r.Context(), backend, prefix)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, services.SummaryResponseBody(backend, prefix, summary)); err != nil {
		h.logger.Error("Failed to encode schema summary response", zap.Error(err))
	}
}
