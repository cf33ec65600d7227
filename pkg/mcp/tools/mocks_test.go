package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

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

func newTestServer(deps *ToolDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, deps)
	return s
}

type toolCallResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool performs a tools/call JSON-RPC round trip.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolCallResponse {
	t.Helper()

	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	result := s.HandleMessage(context.Background(), request)
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response toolCallResponse
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	return response
}

func (r toolCallResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected protocol error")
	require.Len(t, r.Result.Content, 1)
	return r.Result.Content[0].Text
}

func onePageResult() *services.QueryResult {
	total := int64(1)
	pages := 1
	return &services.QueryResult{
		RequestID: "req-1",
		Backend:   models.BackendPooled,
		Page: &models.Page{
			Data:          []map[string]any{{"id": int64(1)}},
			ColumnTypes:   map[string]models.ColumnType{"id": models.ColumnTypeInteger},
			ExecutionTime: 10 * time.Millisecond,
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
