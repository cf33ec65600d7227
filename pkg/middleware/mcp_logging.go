package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

const maxArgumentLogLength = 200

// sensitiveArgumentKeys are redacted wherever they appear in a tool argument name.
var sensitiveArgumentKeys = []string{"password", "secret", "token", "key", "credential"}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic at debug
// level: the method, tool and sanitized arguments on the way in, and the
// outcome on the way out. Tool results flagged isError are logged with the
// gateway error code they carry. A nil logger disables logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			// Not every body is valid JSON-RPC; the server reports those itself.
			var rpcReq jsonRPCRequest
			_ = json.Unmarshal(bodyBytes, &rpcReq)

			reqLogger := logger.With(
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("tool", rpcReq.Params.Name),
			)
			reqLogger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			rpcResp, ok := parseRPCResponse(recorder.body.Bytes())
			if !ok {
				return
			}

			switch {
			case rpcResp.Error != nil:
				reqLogger.Debug("MCP response error",
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration),
				)
			case rpcResp.Result.IsError:
				reqLogger.Debug("MCP tool error",
					zap.String("code", rpcResp.Result.errorCode()),
					zap.Duration("duration", duration),
				)
			default:
				reqLogger.Debug("MCP response success", zap.Duration("duration", duration))
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result toolResult    `json:"result"`
	Error  *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// errorCode pulls the "code" field out of the first text block of an error
// result. Empty when the block is not the gateway's JSON error shape.
func (t toolResult) errorCode() string {
	for _, c := range t.Content {
		if c.Type != "text" {
			continue
		}
		var body struct {
			Code string `json:"code"`
		}
		if json.Unmarshal([]byte(c.Text), &body) == nil {
			return body.Code
		}
		return ""
	}
	return ""
}

// parseRPCResponse accepts a plain JSON body or a single SSE "data:" event.
func parseRPCResponse(body []byte) (jsonRPCResponse, bool) {
	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		return resp, true
	}
	for _, line := range strings.Split(string(body), "\n") {
		data, found := strings.CutPrefix(strings.TrimSpace(line), "data:")
		if !found {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &resp); err == nil {
			return resp, true
		}
	}
	return resp, false
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Flush keeps streamed MCP responses flowing through the recorder.
func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts sensitive fields, masks literals in SQL
// arguments and truncates long values. Bound parameter values are caller
// data and never logged.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		if lowerKey == "params" || isSensitiveKey(lowerKey) {
			result[k] = logging.RedactedText
			continue
		}

		str, ok := v.(string)
		switch {
		case ok && lowerKey == "query":
			result[k] = logging.SanitizeQuery(str)
		case ok:
			result[k] = logging.TruncateString(str, maxArgumentLogLength)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(lowerKey string) bool {
	for _, keyword := range sensitiveArgumentKeys {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
