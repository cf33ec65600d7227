package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp/tools"
)

// Security levels attached to audit events.
const (
	SecurityNormal   = "normal"
	SecurityWarning  = "warning"
	SecurityCritical = "critical"
)

// AuditEvent is one tool call as recorded in the audit log.
type AuditEvent struct {
	Tool          string
	Params        map[string]any
	Successful    bool
	Duration      time.Duration
	ErrorCode     string
	SecurityLevel string
	SecurityFlags []string
}

// AuditLogger records every MCP tool call as a structured log event.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger that records MCP tool calls.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.Named("mcp-audit"),
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	event := a.buildEvent(id, req)
	event.Successful = result != nil && !result.IsError
	classifyToolResult(event, result)
	a.record(event)
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, _ error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	event := a.buildEvent(id, req)
	event.ErrorCode = "internal_error"
	a.record(event)
}

func (a *AuditLogger) loadAndDeleteStart(id any) time.Time {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time)
	}
	return time.Now()
}

func (a *AuditLogger) buildEvent(id any, req *mcplib.CallToolRequest) *AuditEvent {
	return &AuditEvent{
		Tool:          req.Params.Name,
		Params:        sanitizeParams(req.Params.Arguments),
		Duration:      time.Since(a.loadAndDeleteStart(id)),
		SecurityLevel: SecurityNormal,
	}
}

func (a *AuditLogger) record(event *AuditEvent) {
	fields := []zap.Field{
		zap.String("tool", event.Tool),
		zap.Bool("successful", event.Successful),
		zap.Duration("duration", event.Duration),
		zap.String("security_level", event.SecurityLevel),
	}
	if len(event.Params) > 0 {
		fields = append(fields, zap.Any("params", event.Params))
	}
	if event.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", event.ErrorCode))
	}
	if len(event.SecurityFlags) > 0 {
		fields = append(fields, zap.Strings("security_flags", event.SecurityFlags))
	}

	switch event.SecurityLevel {
	case SecurityCritical:
		a.logger.Error("MCP tool call", fields...)
	case SecurityWarning:
		a.logger.Warn("MCP tool call", fields...)
	default:
		a.logger.Info("MCP tool call", fields...)
	}
}

// maxAuditStringLength bounds string parameters kept in audit events.
const maxAuditStringLength = 10240

// sanitizeParams sanitizes tool arguments before they are logged.
// SQL parameters keep their structure with literals masked, bound values are
// hashed so repeated values can be correlated without being stored.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		switch {
		case k == "params":
			sanitized[k] = hashBoundValues(v)
		case isSQLParam(k):
			if s, ok := v.(string); ok {
				sanitized[k] = logging.SanitizeQuery(s)
				continue
			}
			sanitized[k] = v
		default:
			if s, ok := v.(string); ok {
				sanitized[k] = logging.TruncateString(s, maxAuditStringLength)
				continue
			}
			sanitized[k] = v
		}
	}
	return sanitized
}

// isSQLParam returns true if a parameter key likely contains SQL.
func isSQLParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" || strings.HasSuffix(lower, "_sql") || strings.HasSuffix(lower, "_query")
}

func hashBoundValues(v any) any {
	switch vals := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vals))
		for k, val := range vals {
			out[k] = hashSensitiveValue(val)
		}
		return out
	case []any:
		out := make([]any, len(vals))
		for i, val := range vals {
			out[i] = hashSensitiveValue(val)
		}
		return out
	}
	return logging.RedactedText
}

// hashSensitiveValue returns a SHA-256 hash prefix for a value.
func hashSensitiveValue(value any) string {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// classifyToolResult reads the structured error of a failed tool result and
// raises the event's security level for denied operations.
func classifyToolResult(event *AuditEvent, result *mcplib.CallToolResult) {
	if result == nil || !result.IsError {
		return
	}

	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var resp tools.ErrorResponse
		if err := json.Unmarshal([]byte(tc.Text), &resp); err != nil || !resp.Error {
			continue
		}
		event.ErrorCode = resp.Code

		if resp.Code != string(apperrors.KindDestructiveOperation) {
			return
		}
		if strings.Contains(strings.ToLower(resp.Message), "parameter values") {
			event.SecurityLevel = SecurityCritical
			event.SecurityFlags = append(event.SecurityFlags, "sql_injection_attempt")
			return
		}
		event.SecurityLevel = SecurityWarning
		event.SecurityFlags = append(event.SecurityFlags, "destructive_operation_denied")
		return
	}
}
