package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies every error the gateway surfaces to callers.
type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindDestructiveOperation Kind = "destructive_operation_denied"
	KindPlaceholderMismatch  Kind = "placeholder_mismatch"
	KindPoolExhausted        Kind = "pool_exhausted"
	KindBackendUnavailable   Kind = "backend_unavailable"
	KindQueryExecution       Kind = "query_execution_error"
	KindQueryTimeout         Kind = "query_timeout"
)

var (
	ErrEmptyQuery           = New(KindValidation, "query must not be empty")
	ErrUnknownBackend       = New(KindValidation, "db must be one of: pooled, odbc")
	ErrDestructive          = New(KindDestructiveOperation, "Query contains operations that are not permitted")
	ErrMultipleStatements   = New(KindDestructiveOperation, "Multiple SQL statements are not permitted")
	ErrPoolExhausted        = New(KindPoolExhausted, "No database connection available, try again later")
	ErrBackendNotConfigured = New(KindBackendUnavailable, "Requested database is not configured")
	ErrBackendUnreachable   = New(KindBackendUnavailable, "Requested database is unreachable")
	ErrQueryTimeout         = New(KindQueryTimeout, "Query exceeded the execution time limit")
)

// Caller-safe messages for statements the backend rejected.
var (
	ErrUndefinedObject  = &Error{Kind: KindQueryExecution, Message: "Referenced table or column does not exist", Status: http.StatusBadRequest}
	ErrQuerySyntax      = &Error{Kind: KindQueryExecution, Message: "Query has a syntax error", Status: http.StatusBadRequest}
	ErrPermissionDenied = &Error{Kind: KindQueryExecution, Message: "Permission denied for the requested operation", Status: http.StatusForbidden}
	ErrInvalidValue     = &Error{Kind: KindQueryExecution, Message: "Invalid value for the column type", Status: http.StatusBadRequest}
	ErrQueryFailed      = New(KindQueryExecution, "Query execution failed")
)

// Error is a classified error. Message is safe to return to callers;
// Err holds the underlying cause for server-side logging only.
type Error struct {
	Kind    Kind
	Message string
	Status  int // overrides the default status for the kind when non-zero
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and message so sentinels
// keep working through errors.Is after Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// HTTPStatus returns the response status for the error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return StatusForKind(e.Kind)
}

// New creates a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCause returns a copy of a sentinel carrying err as its cause.
func WithCause(sentinel *Error, err error) *Error {
	cp := *sentinel
	cp.Err = err
	return &cp
}

// StatusForKind is the default HTTP status per kind.
func StatusForKind(kind Kind) int {
	switch kind {
	case KindValidation, KindPlaceholderMismatch:
		return http.StatusBadRequest
	case KindDestructiveOperation:
		return http.StatusForbidden
	case KindPoolExhausted, KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case KindQueryTimeout:
		return http.StatusGatewayTimeout
	case KindQueryExecution:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// As extracts the classified error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
