package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/middleware"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// ExecuteSQLRequest is the POST /api/query body.
type ExecuteSQLRequest struct {
	DB       string `json:"db"`
	Query    string `json:"query"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// ParameterizedSQLRequest is the POST /api/query/parameterized body.
// Params is an object for the named style and an array for qmark, format
// and numeric.
type ParameterizedSQLRequest struct {
	DB         string          `json:"db"`
	Query      string          `json:"query"`
	Params     json.RawMessage `json:"params"`
	ParamStyle string          `json:"param_style"`
	Page       int             `json:"page,omitempty"`
	PageSize   int             `json:"page_size,omitempty"`
}

// QueryHandler serves query execution.
type QueryHandler struct {
	queryService services.QueryService
	logger       *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queryService services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the query routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Execute)
	mux.HandleFunc("POST /api/query/parameterized", h.ExecuteParameterized)
}

// Execute handles POST /api/query.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteSQLRequest
	if !decodeBody(w, r, &body, h.logger) {
		return
	}

	req, err := services.NewRawRequest(body.DB, body.Query, body.Page, body.PageSize)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.run(w, r, req)
}

// ExecuteParameterized handles POST /api/query/parameterized.
func (h *QueryHandler) ExecuteParameterized(w http.ResponseWriter, r *http.Request) {
	var body ParameterizedSQLRequest
	if !decodeBody(w, r, &body, h.logger) {
		return
	}

	req, err := services.NewParameterizedRequest(body.DB, body.Query, body.Params, body.ParamStyle, body.Page, body.PageSize)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.run(w, r, req)
}

func (h *QueryHandler) run(w http.ResponseWriter, r *http.Request, req *models.QueryRequest) {
	req.RequestID = middleware.GetRequestID(r.Context())

	result, err := h.queryService.Execute(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, services.QueryResponseBody(result)); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}
