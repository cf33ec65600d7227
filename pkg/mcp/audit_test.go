package mcp

import (
	"context"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp/tools"
)

func TestClassifyToolResult_NilResult(t *testing.T) {
	event := &AuditEvent{SecurityLevel: SecurityNormal}
	classifyToolResult(event, nil)

	assert.Equal(t, SecurityNormal, event.SecurityLevel)
}

func TestClassifyToolResult_NonErrorResult(t *testing.T) {
	event := &AuditEvent{SecurityLevel: SecurityNormal}
	classifyToolResult(event, &mcplib.CallToolResult{IsError: false})

	assert.Equal(t, SecurityNormal, event.SecurityLevel)
	assert.Empty(t, event.ErrorCode)
}

func TestClassifyToolResult_DestructiveDenied(t *testing.T) {
	event := &AuditEvent{SecurityLevel: SecurityNormal}
	result := tools.NewErrorResult(string(apperrors.KindDestructiveOperation), apperrors.ErrDestructive.Message)

	classifyToolResult(event, result)

	assert.Equal(t, string(apperrors.KindDestructiveOperation), event.ErrorCode)
	assert.Equal(t, SecurityWarning, event.SecurityLevel)
	assert.Equal(t, []string{"destructive_operation_denied"}, event.SecurityFlags)
}

func TestClassifyToolResult_InjectedParameters(t *testing.T) {
	event := &AuditEvent{SecurityLevel: SecurityNormal}
	result := tools.NewErrorResult(string(apperrors.KindDestructiveOperation), "Parameter values contain disallowed SQL")

	classifyToolResult(event, result)

	assert.Equal(t, SecurityCritical, event.SecurityLevel)
	assert.Equal(t, []string{"sql_injection_attempt"}, event.SecurityFlags)
}

func TestClassifyToolResult_OrdinaryError(t *testing.T) {
	event := &AuditEvent{SecurityLevel: SecurityNormal}
	result := tools.NewErrorResult(string(apperrors.KindQueryTimeout), apperrors.ErrQueryTimeout.Message)

	classifyToolResult(event, result)

	assert.Equal(t, string(apperrors.KindQueryTimeout), event.ErrorCode)
	assert.Equal(t, SecurityNormal, event.SecurityLevel)
	assert.Empty(t, event.SecurityFlags)
}

func TestSanitizeParams_NilInput(t *testing.T) {
	assert.Nil(t, sanitizeParams(nil))
	assert.Nil(t, sanitizeParams(map[string]any{}))
	assert.Nil(t, sanitizeParams("not a map"))
}

func TestSanitizeParams_MasksSQLLiterals(t *testing.T) {
	result := sanitizeParams(map[string]any{
		"query": "SELECT * FROM owners WHERE email = 'ada@example.com' AND name = 'O''Brien'",
	})

	got := result["query"].(string)
	assert.NotContains(t, got, "ada@example.com")
	assert.NotContains(t, got, "Brien")
	assert.Contains(t, got, "SELECT * FROM owners WHERE email = '?'")
}

func TestSanitizeParams_HashesBoundValues(t *testing.T) {
	named := sanitizeParams(map[string]any{"params": map[string]any{"ssn": "123-45-6789"}})
	hashed := named["params"].(map[string]any)["ssn"].(string)
	assert.True(t, strings.HasPrefix(hashed, "sha256:"))
	assert.Len(t, hashed, len("sha256:")+16)

	positional := sanitizeParams(map[string]any{"params": []any{"123-45-6789", float64(7)}})
	list := positional["params"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, hashed, list[0], "hash must be deterministic")

	scalar := sanitizeParams(map[string]any{"params": "oops"})
	assert.Equal(t, "[REDACTED]", scalar["params"])
}

func TestSanitizeParams_TruncatesLargeStrings(t *testing.T) {
	result := sanitizeParams(map[string]any{"prefix": strings.Repeat("a", maxAuditStringLength+10)})

	got := result["prefix"].(string)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, maxAuditStringLength+3)
}

func TestSanitizeParams_PreservesSmallValues(t *testing.T) {
	result := sanitizeParams(map[string]any{"db": "pooled", "page": float64(2)})

	assert.Equal(t, "pooled", result["db"])
	assert.Equal(t, float64(2), result["page"])
}

func TestIsSQLParam(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sql", true},
		{"query", true},
		{"QUERY", true},
		{"count_sql", true},
		{"base_query", true},
		{"db", false},
		{"prefix", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSQLParam(tt.key), tt.key)
	}
}

func TestAuditLogger_RecordsToolCalls(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := NewAuditLogger(zap.New(core))

	s := NewServer("test", "1.0.0", zap.NewNop(), server.WithHooks(audit.Hooks()))
	s.RegisterTool(mcplib.NewTool("ok_tool"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return mcplib.NewToolResultText("{}"), nil
	})
	s.RegisterTool(mcplib.NewTool("denied_tool"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return tools.NewErrorResult(string(apperrors.KindDestructiveOperation), apperrors.ErrDestructive.Message), nil
	})

	ctx := context.Background()
	s.MCP().HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ok_tool","arguments":{"query":"SELECT 'secret'"}}}`))
	s.MCP().HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"denied_tool","arguments":{}}}`))

	entries := logs.FilterMessage("MCP tool call").All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "ok_tool", first["tool"])
	assert.Equal(t, true, first["successful"])
	params, ok := first["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SELECT '?'", params["query"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	second := entries[1].ContextMap()
	assert.Equal(t, "denied_tool", second["tool"])
	assert.Equal(t, false, second["successful"])
	assert.Equal(t, string(apperrors.KindDestructiveOperation), second["error_code"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
