package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// instructions is returned to clients on initialize.
const instructions = `Read-only SQL gateway. Use "pooled" for PostgreSQL and "odbc" for SQL Server.
Call schema_summary before writing queries. Only single SELECT statements are accepted;
prefer execute_parameterized_sql when a query carries caller-supplied values.`

// Server wraps the mcp-go MCPServer with the gateway's defaults: tool
// capabilities, panic recovery inside tool handlers, and client instructions.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server. Extra options (hooks, for example) are
// applied after the defaults.
func NewServer(name, version string, logger *zap.Logger, opts ...server.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	}
	return &Server{
		mcp:    server.NewMCPServer(name, version, append(base, opts...)...),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport. Routing to
// /mcp is done by the HTTP mux, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
	s.logger.Debug("registered MCP tool", zap.String("tool", tool.Name))
}
