package services

import (
	"encoding/json"
	"time"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

const statusSuccess = "success"

// ParseBackendName resolves a caller "db" value, accepting engine aliases.
func ParseBackendName(db string) (models.Backend, error) {
	backend, ok := models.ParseBackend(db)
	if !ok {
		return "", apperrors.ErrUnknownBackend
	}
	return backend, nil
}

// NewRawRequest builds a pipeline request for raw SQL text.
func NewRawRequest(db, query string, page, pageSize int) (*models.QueryRequest, error) {
	backend, err := ParseBackendName(db)
	if err != nil {
		return nil, err
	}
	return &models.QueryRequest{
		Backend:  backend,
		Text:     query,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// NewParameterizedRequest builds a pipeline request for caller-parameterized
// SQL. params is a JSON object for the named style and an array otherwise.
func NewParameterizedRequest(db, query string, params json.RawMessage, style string, page, pageSize int) (*models.QueryRequest, error) {
	req, err := NewRawRequest(db, query, page, pageSize)
	if err != nil {
		return nil, err
	}

	paramStyle, ok := models.ParseParamStyle(style)
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, "param_style must be one of: named, qmark, format, numeric")
	}

	named, positional, err := sqlutil.DecodeParams(params)
	if err != nil {
		return nil, err
	}
	// An omitted params value decodes as an empty object; positional styles
	// then expect an empty list.
	if paramStyle != models.ParamStyleNamed && positional == nil && len(named) == 0 {
		named, positional = nil, []any{}
	}

	req.Parameterized = true
	req.Style = paramStyle
	req.NamedParams = named
	req.Positional = positional
	return req, nil
}

// QueryResponseBody renders an executed page as the query success body.
func QueryResponseBody(result *QueryResult) *models.QueryResponse {
	return &models.QueryResponse{
		Status:        statusSuccess,
		Data:          result.Page.Data,
		ExecutionTime: result.Page.ExecutionTime.Seconds(),
		Pagination:    result.Page.Pagination,
		ColumnTypes:   result.Page.ColumnTypes,
		Timestamp:     time.Now().UTC(),
		RequestID:     result.RequestID,
	}
}

// SchemaResponseBody renders discovered columns.
func SchemaResponseBody(backend models.Backend, columns []models.SchemaColumn) *models.SchemaResponse {
	if columns == nil {
		columns = []models.SchemaColumn{}
	}
	return &models.SchemaResponse{Status: statusSuccess, Database: backend, DBSchema: columns}
}

// SummaryResponseBody renders a schema summary.
func SummaryResponseBody(backend models.Backend, prefix string, summary *models.SchemaSummary) *models.SchemaSummaryResponse {
	return &models.SchemaSummaryResponse{
		Status:        statusSuccess,
		Database:      backend,
		Filtered:      prefix != "",
		Summary:       summary.Tables,
		TableCounts:   summary.TableCounts,
		Relationships: summary.Relationships,
	}
}
