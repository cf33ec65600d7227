package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

const dbArgDescription = `Target database: "pooled" (alias "postgres") or "odbc" (alias "mssql")`

// RegisterQueryTools registers execute_sql and execute_parameterized_sql.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	registerExecuteSQLTool(s, deps)
	registerExecuteParameterizedSQLTool(s, deps)
}

func registerExecuteSQLTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"execute_sql",
		mcp.WithDescription(
			"Execute a read-only SQL query and return one page of results. "+
				"Literal values are bound as parameters before execution. "+
				"Data-modifying statements are rejected.",
		),
		mcp.WithString("db", mcp.Required(), mcp.Description(dbArgDescription)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The SQL query to execute")),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page, capped by the server maximum")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		db, err := req.RequireString("db")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}

		qr, err := services.NewRawRequest(trimString(db), query, getOptionalInt(req, "page"), getOptionalInt(req, "page_size"))
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}
		return runQuery(ctx, deps, qr)
	})
}

func registerExecuteParameterizedSQLTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"execute_parameterized_sql",
		mcp.WithDescription(
			"Execute a read-only SQL query with caller-supplied placeholders and values. "+
				"param_style selects the placeholder syntax: named (:name, params is an object), "+
				"qmark (?), format (%s) or numeric (:1), where params is an array.",
		),
		mcp.WithString("db", mcp.Required(), mcp.Description(dbArgDescription)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The SQL query with placeholders")),
		mcp.WithObject("params", mcp.Description("Parameter values: an object for named style, an array otherwise")),
		mcp.WithString("param_style",
			mcp.Description("Placeholder style (default named)"),
			mcp.Enum(string(models.ParamStyleNamed), string(models.ParamStyleQmark), string(models.ParamStyleFormat), string(models.ParamStyleNumeric)),
		),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page, capped by the server maximum")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		db, err := req.RequireString("db")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult("validation_error", err.Error()), nil
		}
		params, err := getRawArgument(req, "params")
		if err != nil {
			return NewErrorResult("validation_error", "params must be a JSON object or array"), nil
		}

		qr, err := services.NewParameterizedRequest(
			trimString(db), query, params, getOptionalString(req, "param_style"),
			getOptionalInt(req, "page"), getOptionalInt(req, "page_size"),
		)
		if err != nil {
			return NewAppErrorResult(err, deps.logger())
		}
		return runQuery(ctx, deps, qr)
	})
}

func runQuery(ctx context.Context, deps *ToolDeps, qr *models.QueryRequest) (*mcp.CallToolResult, error) {
	result, err := deps.QueryService.Execute(ctx, qr)
	if err != nil {
		if IsInputError(err) {
			deps.logger().Debug("Query tool rejected input", zap.Error(err))
		}
		return NewAppErrorResult(err, deps.logger())
	}
	return jsonResult(services.QueryResponseBody(result))
}
