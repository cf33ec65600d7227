package sql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// MarkerFunc returns the native placeholder for the n-th bound value (1-based).
type MarkerFunc func(n int) string

// Render rewrites every ":name" marker in the canonical text into the
// backend's native marker and lays out the bound values in marker order.
// A name used twice is bound twice, so len(BoundValues) always equals the
// number of markers in DialectText.
func Render(q models.ParameterizedQuery, marker MarkerFunc) (models.ExecutionPlan, error) {
	toks := lex(q.CanonicalText)
	var b strings.Builder
	b.Grow(len(q.CanonicalText))
	bound := make([]any, 0, len(q.Parameters))

	for i := 0; i < len(toks); i++ {
		name, ok := placeholderAt(toks, i)
		if !ok {
			b.WriteString(toks[i].text)
			continue
		}
		v, found := q.Lookup(name)
		if !found {
			return models.ExecutionPlan{}, mismatch("no value bound for placeholder :%s", name)
		}
		bound = append(bound, v)
		b.WriteString(marker(len(bound)))
		i++
	}

	return models.ExecutionPlan{DialectText: b.String(), BoundValues: bound}, nil
}

// CountMarkers returns the number of ":name" markers in canonical text.
func CountMarkers(text string) int {
	toks := lex(text)
	n := 0
	for i := range toks {
		if _, ok := placeholderAt(toks, i); ok {
			n++
		}
	}
	return n
}
