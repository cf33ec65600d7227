package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// errInternal is returned as a protocol error for unclassified failures so
// that no driver detail reaches the client.
var errInternal = errors.New("internal server error")

// ErrorResponse represents a structured error in tool results.
// Classified gateway errors are returned as successful tool results with
// IsError set, so the client sees the same message an HTTP caller would.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewAppErrorResult converts a service error into a tool result. Classified
// errors become structured error results coded by kind; anything else is
// logged and surfaced as a generic protocol error.
func NewAppErrorResult(err error, logger *zap.Logger) (*mcp.CallToolResult, error) {
	if appErr, ok := apperrors.As(err); ok {
		return NewErrorResult(string(appErr.Kind), appErr.Message), nil
	}
	logger.Error("Unclassified tool error", zap.String("error", logging.SanitizeError(err)))
	return nil, errInternal
}

// IsInputError reports whether err was caused by the caller's input rather
// than a server-side failure. Input errors are logged at a lower level.
func IsInputError(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindPlaceholderMismatch, apperrors.KindDestructiveOperation:
		return true
	}
	if appErr, ok := apperrors.As(err); ok && appErr.Kind == apperrors.KindQueryExecution {
		return appErr.HTTPStatus() < 500
	}
	return false
}
