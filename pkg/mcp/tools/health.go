package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

type healthResult struct {
	*models.HealthReport
	Version string `json:"version"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool probes every configured database and returns the same report as
// GET /health plus the server version.
func RegisterHealthTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns gateway health, per-database reachability and server version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := deps.HealthService.Check(ctx)
		return jsonResult(healthResult{HealthReport: report, Version: deps.Version})
	})
}

// RegisterAll registers every gateway tool.
func RegisterAll(s *server.MCPServer, deps *ToolDeps) {
	RegisterQueryTools(s, deps)
	RegisterSchemaTools(s, deps)
	RegisterHealthTool(s, deps)
}
