package sql

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

func dollarMarker(n int) string { return fmt.Sprintf("$%d", n) }

func TestRender(t *testing.T) {
	q := models.ParameterizedQuery{
		CanonicalText: "SELECT * FROM parcels WHERE city = :p1 AND id > :p2 LIMIT 10",
		Parameters:    []models.Parameter{{Name: "p1", Value: "Seattle"}, {Name: "p2", Value: int64(100)}},
	}

	plan, err := Render(q, dollarMarker)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM parcels WHERE city = $1 AND id > $2 LIMIT 10", plan.DialectText)
	assert.Equal(t, []any{"Seattle", int64(100)}, plan.BoundValues)
}

func TestRender_RepeatedNameBindsEachOccurrence(t *testing.T) {
	q := models.ParameterizedQuery{
		CanonicalText: "SELECT * FROM t WHERE a = :x OR b = :y OR c = :x",
		Parameters:    []models.Parameter{{Name: "x", Value: 1}, {Name: "y", Value: 2}},
	}

	plan, err := Render(q, func(n int) string { return fmt.Sprintf("@p%d", n) })
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = @p1 OR b = @p2 OR c = @p3", plan.DialectText)
	assert.Equal(t, []any{1, 2, 1}, plan.BoundValues)
}

func TestRender_UnboundPlaceholder(t *testing.T) {
	q := models.ParameterizedQuery{CanonicalText: "SELECT :missing"}
	_, err := Render(q, dollarMarker)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPlaceholderMismatch))
}

func TestRender_ExtractedQueryBindsEveryValue(t *testing.T) {
	q, err := ExtractLiterals("SELECT * FROM t WHERE a = 'x' AND b IN (1, 2) AND c::text = 'y'")
	require.NoError(t, err)

	plan, err := Render(q, dollarMarker)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3) AND c::text = $4", plan.DialectText)
	assert.Len(t, plan.BoundValues, 4)
}
