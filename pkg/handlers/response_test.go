package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid input"},
		{"forbidden", http.StatusForbidden, "not permitted"},
		{"internal error", http.StatusInternalServerError, "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			if err := ErrorResponse(w, tt.statusCode, tt.message); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			if w.Code != tt.statusCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			body := decodeError(t, w)
			if body.Status != "error" {
				t.Errorf("body.status = %q, want %q", body.Status, "error")
			}
			if body.Message != tt.message {
				t.Errorf("body.message = %q, want %q", body.Message, tt.message)
			}
		})
	}
}

func TestWriteJSON_Status200(t *testing.T) {
	w := httptest.NewRecorder()

	if err := WriteJSON(w, http.StatusOK, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["key"] != "value" {
		t.Errorf("body[key] = %q, want %q", body["key"], "value")
	}
}

func TestWriteError_Classified(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperrors.ErrEmptyQuery, http.StatusBadRequest, apperrors.ErrEmptyQuery.Message},
		{"destructive", apperrors.ErrDestructive, http.StatusForbidden, apperrors.ErrDestructive.Message},
		{"pool exhausted", apperrors.ErrPoolExhausted, http.StatusServiceUnavailable, apperrors.ErrPoolExhausted.Message},
		{"timeout", apperrors.ErrQueryTimeout, http.StatusGatewayTimeout, apperrors.ErrQueryTimeout.Message},
		{"wrapped with cause", apperrors.WithCause(apperrors.ErrQuerySyntax, errors.New("syntax error at or near \"FORM\"")), http.StatusBadRequest, apperrors.ErrQuerySyntax.Message},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			if w.Code != tt.status {
				t.Errorf("status code = %d, want %d", w.Code, tt.status)
			}
			body := decodeError(t, w)
			if body.Message != tt.message {
				t.Errorf("body.message = %q, want %q", body.Message, tt.message)
			}
		})
	}
}

func TestWriteError_UnclassifiedIsGeneric(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()

	WriteError(w, errors.New("dial tcp 10.0.0.5:5432: password=hunter2"), zap.New(core))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeError(t, w)
	if body.Message != "Internal server error" {
		t.Errorf("body.message = %q, want generic message", body.Message)
	}
	if strings.Contains(body.Message, "hunter2") {
		t.Error("response leaked error detail")
	}
	if logs.Len() != 1 {
		t.Errorf("expected 1 error log, got %d", logs.Len())
	}
}

func TestDecodeBody(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{not json"))

		var dst ExecuteSQLRequest
		if decodeBody(w, r, &dst, zap.NewNop()) {
			t.Fatal("expected decodeBody to fail")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if body := decodeError(t, w); body.Message != "Invalid request body" {
			t.Errorf("body.message = %q", body.Message)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		w := httptest.NewRecorder()
		payload := `{"db":"pooled","query":"` + strings.Repeat("x", maxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))

		var dst ExecuteSQLRequest
		if decodeBody(w, r, &dst, zap.NewNop()) {
			t.Fatal("expected decodeBody to fail")
		}
		if body := decodeError(t, w); body.Message != "Request body too large" {
			t.Errorf("body.message = %q", body.Message)
		}
	})
}
