package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindPlaceholderMismatch, http.StatusBadRequest},
		{KindDestructiveOperation, http.StatusForbidden},
		{KindPoolExhausted, http.StatusServiceUnavailable},
		{KindBackendUnavailable, http.StatusServiceUnavailable},
		{KindQueryTimeout, http.StatusGatewayTimeout},
		{KindQueryExecution, http.StatusInternalServerError},
		{Kind("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.kind, "x").HTTPStatus())
		})
	}
}

func TestErrorStatusOverride(t *testing.T) {
	err := &Error{Kind: KindQueryExecution, Message: "bad input", Status: http.StatusBadRequest}
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestWithCausePreservesSentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := WithCause(ErrBackendUnreachable, cause)

	assert.ErrorIs(t, err, ErrBackendUnreachable)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, ErrBackendUnreachable.Err, "sentinel must not be mutated")
	assert.Equal(t, "Requested database is unreachable", err.Message)
}

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("acquire: %w", ErrPoolExhausted)

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindPoolExhausted, appErr.Kind)
	assert.True(t, IsKind(err, KindPoolExhausted))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "m", New(KindValidation, "m").Error())
	assert.Equal(t, "m: cause", Wrap(KindValidation, "m", errors.New("cause")).Error())
}
