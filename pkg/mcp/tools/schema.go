package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// RegisterSchemaTools registers discover_schema and schema_summary.
func RegisterSchemaTools(s *server.MCPServer, deps *ToolDeps) {
	discover := mcp.NewTool(
		"discover_schema",
		mcp.WithDescription("List every column of every user table with its normalised type and key flags."),
		mcp.WithString("db", mcp.Required(), mcp.Description(dbArgDescription)),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(discover, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		db, err := req.RequireString("db")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}
		backend, err := services.ParseBackendName(trimString(db))
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}

		columns, err := deps.SchemaService.Discover(ctx, backend)
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}
		return jsonResult(services.SchemaResponseBody(backend, columns))
	})

	summary := mcp.NewTool(
		"schema_summary",
		mcp.WithDescription(
			"Summarise tables, foreign-key relationships and approximate row counts. "+
				"An optional prefix filters tables by name (case-insensitive). "+
				"A null row count means the count could not be taken in time.",
		),
		mcp.WithString("db", mcp.Required(), mcp.Description(dbArgDescription)),
		mcp.WithString("prefix", mcp.Description("Optional table-name prefix, at most 50 characters")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(summary, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		db, err := req.RequireString("db")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}
		backend, err := services.ParseBackendName(trimString(db))
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}
		prefix := getOptionalString(req, "prefix")

		result, err := deps.SchemaService.Summarize(ctx, backend, prefix)
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}
		return jsonResult(services.SummaryResponseBody(backend, prefix, result))
	})
}
