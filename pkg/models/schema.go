package models

// DataType is the normalised column type shared by every backend.
type DataType string

const (
	DataTypeInteger  DataType = "integer"
	DataTypeDecimal  DataType = "decimal"
	DataTypeText     DataType = "text"
	DataTypeBoolean  DataType = "boolean"
	DataTypeDatetime DataType = "datetime"
	DataTypeBinary   DataType = "binary"
	DataTypeUnknown  DataType = "unknown"
)

// ColumnType maps a schema type onto the result-set vocabulary.
func (d DataType) ColumnType() ColumnType {
	switch d {
	case DataTypeInteger:
		return ColumnTypeInteger
	case DataTypeDecimal:
		return ColumnTypeFloat
	case DataTypeText:
		return ColumnTypeString
	case DataTypeBoolean:
		return ColumnTypeBoolean
	case DataTypeDatetime:
		return ColumnTypeDatetime
	case DataTypeBinary:
		return ColumnTypeBinary
	}
	return ColumnTypeNull
}

// SchemaColumn is one column of a discovered table.
type SchemaColumn struct {
	TableName    string   `json:"table_name"`
	ColumnName   string   `json:"column_name"`
	DataType     DataType `json:"data_type"`
	IsNullable   bool     `json:"is_nullable"`
	IsPrimaryKey bool     `json:"is_primary_key"`
	IsForeignKey bool     `json:"is_foreign_key"`
}

// SchemaRelationship is a foreign key read from catalog metadata.
type SchemaRelationship struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// SchemaSummary lists tables, their foreign keys and best-effort row counts.
// A nil count means the probe failed or timed out.
type SchemaSummary struct {
	Tables        []string
	Relationships []SchemaRelationship
	TableCounts   map[string]*int64
}

// SchemaResponse is the success body for schema discovery.
type SchemaResponse struct {
	Status   string         `json:"status"`
	Database Backend        `json:"database"`
	DBSchema []SchemaColumn `json:"db_schema"`
}

// SchemaSummaryResponse is the success body for a schema summary.
type SchemaSummaryResponse struct {
	Status        string               `json:"status"`
	Database      Backend              `json:"database"`
	Filtered      bool                 `json:"filtered"`
	Summary       []string             `json:"summary"`
	TableCounts   map[string]*int64    `json:"table_counts"`
	Relationships []SchemaRelationship `json:"relationships"`
}
