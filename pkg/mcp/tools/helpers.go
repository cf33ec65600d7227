package tools

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64; fractional values are truncated.
func getOptionalInt(req mcp.CallToolRequest, key string) int {
	switch v := arguments(req)[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return int(n)
		}
	}
	return 0
}

// getRawArgument re-encodes an argument as JSON so it can pass through the
// same decoder as an HTTP body. A missing argument yields nil.
func getRawArgument(req mcp.CallToolRequest, key string) (json.RawMessage, error) {
	val, ok := arguments(req)[key]
	if !ok || val == nil {
		return nil, nil
	}
	return json.Marshal(val)
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}
