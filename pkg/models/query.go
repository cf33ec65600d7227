package models

import "time"

// ParamStyle is the placeholder convention used by caller-supplied parameterized SQL.
type ParamStyle string

const (
	ParamStyleNamed   ParamStyle = "named"   // :name
	ParamStyleQmark   ParamStyle = "qmark"   // ?
	ParamStyleFormat  ParamStyle = "format"  // %s
	ParamStyleNumeric ParamStyle = "numeric" // :1, :2
)

// ParseParamStyle validates a style name. An empty name defaults to named.
func ParseParamStyle(s string) (ParamStyle, bool) {
	switch ParamStyle(s) {
	case "":
		return ParamStyleNamed, true
	case ParamStyleNamed, ParamStyleQmark, ParamStyleFormat, ParamStyleNumeric:
		return ParamStyle(s), true
	}
	return "", false
}

// RawQuery is caller-supplied SQL text with paging hints.
type RawQuery struct {
	Backend  Backend
	Text     string
	Page     int
	PageSize int
}

// Parameter is one bound value of a ParameterizedQuery.
type Parameter struct {
	Name  string
	Value any
}

// ParameterizedQuery holds SQL whose literals have been replaced by named
// placeholders (":p1", ":name"). Parameters are kept in discovery order.
type ParameterizedQuery struct {
	CanonicalText string
	Parameters    []Parameter
}

// Lookup returns the value bound to name.
func (q ParameterizedQuery) Lookup(name string) (any, bool) {
	for _, p := range q.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// ParamMap returns the parameters as a name→value map for responses and logs.
func (q ParameterizedQuery) ParamMap() map[string]any {
	m := make(map[string]any, len(q.Parameters))
	for _, p := range q.Parameters {
		m[p.Name] = p.Value
	}
	return m
}

// ExecutionPlan is a backend-specific rendering of a ParameterizedQuery.
// BoundValues is ordered to match the placeholders in DialectText.
type ExecutionPlan struct {
	DialectText string
	BoundValues []any
}

// QueryRequest is a query ready for the pipeline: either raw text or
// caller-parameterized text with explicit values.
type QueryRequest struct {
	// RequestID correlates logs with the boundary request. Generated when empty.
	RequestID string

	Backend  Backend
	Text     string
	Page     int
	PageSize int

	// Parameterized is set when the caller supplied placeholders and values.
	Parameterized bool
	Style         ParamStyle
	NamedParams   map[string]any
	Positional    []any
}

// Raw returns the RawQuery view of the request.
func (r QueryRequest) Raw() RawQuery {
	return RawQuery{Backend: r.Backend, Text: r.Text, Page: r.Page, PageSize: r.PageSize}
}

// QueryResponse is the success body for query execution.
type QueryResponse struct {
	Status        string                `json:"status"`
	Data          []map[string]any      `json:"data"`
	ExecutionTime float64               `json:"execution_time"`
	Pagination    Pagination            `json:"pagination"`
	ColumnTypes   map[string]ColumnType `json:"column_types"`
	Timestamp     time.Time             `json:"timestamp"`
	RequestID     string                `json:"request_id,omitempty"`
}
