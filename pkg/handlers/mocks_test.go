package handlers

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

type mockQueryService struct {
	result *services.QueryResult
	err    error
	got    *models.QueryRequest
}

func (m *mockQueryService) Execute(_ context.Context, req *models.QueryRequest) (*services.QueryResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockSchemaService struct {
	columns    []models.SchemaColumn
	summary    *models.SchemaSummary
	err        error
	gotBackend models.Backend
	gotPrefix  string
}

func (m *mockSchemaService) Discover(_ context.Context, backend models.Backend) ([]models.SchemaColumn, error) {
	m.gotBackend = backend
	return m.columns, m.err
}

func (m *mockSchemaService) Summarize(_ context.Context, backend models.Backend, prefix string) (*models.SchemaSummary, error) {
	m.gotBackend = backend
	m.gotPrefix = prefix
	return m.summary, m.err
}

type mockHealthService struct {
	report *models.HealthReport
}

func (m *mockHealthService) Check(context.Context) *models.HealthReport {
	return m.report
}

type mockStats struct{}

func (mockStats) GetStats() datasource.ConnectionStats {
	return datasource.ConnectionStats{Backends: []datasource.BackendStats{
		{Backend: models.BackendPooled, Bounded: true},
	}}
}

func onePageResult() *services.QueryResult {
	total := int64(1)
	pages := 1
	return &services.QueryResult{
		RequestID: "req-1",
		Backend:   models.BackendPooled,
		Page: &models.Page{
			Data:          []map[string]any{{"id": int64(1), "name": "Ada"}},
			ColumnTypes:   map[string]models.ColumnType{"id": models.ColumnTypeInteger, "name": models.ColumnTypeString},
			ExecutionTime: 25 * time.Millisecond,
			Pagination: models.Pagination{
				Page:         1,
				PageSize:     50,
				TotalPages:   &pages,
				TotalRecords: &total,
				CountExact:   true,
			},
		},
	}
}
