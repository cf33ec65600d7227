package models

import "time"

// ColumnType is the semantic type reported for a result column.
type ColumnType string

const (
	ColumnTypeInteger  ColumnType = "integer"
	ColumnTypeFloat    ColumnType = "float"
	ColumnTypeString   ColumnType = "string"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeDatetime ColumnType = "datetime"
	ColumnTypeBinary   ColumnType = "binary"
	// ColumnTypeNull is reported when neither metadata nor values reveal a type.
	ColumnTypeNull ColumnType = "null"
)

// ResultSet holds materialised rows from one execution.
type ResultSet struct {
	Columns       []string
	Rows          []map[string]any
	ColumnTypes   map[string]ColumnType
	TotalRows     *int64
	ExecutionTime time.Duration
}

// Pagination describes the window a Page covers. TotalRecords and TotalPages
// are nil when the count is unknown.
type Pagination struct {
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	TotalPages   *int   `json:"total_pages"`
	TotalRecords *int64 `json:"total_records"`
	HasNext      bool   `json:"has_next"`
	HasPrev      bool   `json:"has_prev"`
	NextPage     *int   `json:"next_page"`
	PrevPage     *int   `json:"prev_page"`
	CountExact   bool   `json:"count_exact"`
}

// Page is a window of a ResultSet plus its pagination metadata.
type Page struct {
	Data          []map[string]any
	Pagination    Pagination
	ColumnTypes   map[string]ColumnType
	ExecutionTime time.Duration
}
