package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// Conn is the query surface of one physical connection. Implementations
// adapt a driver (pgx, database/sql) so dialect code never depends on one.
type Conn interface {
	// Query executes a statement with positional bound values.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Ping verifies the connection is still usable.
	Ping(ctx context.Context) error
}

// Rows is a forward-only result cursor.
type Rows interface {
	Columns() []ColumnMeta
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}

// ColumnMeta is the driver-reported description of a result column.
// NativeType is empty when the driver reports nothing usable.
type ColumnMeta struct {
	Name       string
	NativeType string
}

// TableRef names a table by schema and name.
type TableRef struct {
	Schema string
	Name   string
}

// Dialect is everything backend-specific about a relational engine: how
// canonical queries become native SQL, how rows are read, and how the
// catalog is introspected. Backends are added by implementing Dialect, not
// by branching on backend names in shared code.
type Dialect interface {
	Backend() models.Backend

	// Render converts canonical ":name" placeholders to native markers.
	Render(q models.ParameterizedQuery) (models.ExecutionPlan, error)

	// PagePlan wraps a plan so it returns at most limit rows after offset.
	PagePlan(plan models.ExecutionPlan, limit, offset int) models.ExecutionPlan

	// CountPlan wraps a plan so it returns a single row with the total row count.
	CountPlan(plan models.ExecutionPlan) models.ExecutionPlan

	// Execute runs a plan on conn and materialises every returned row.
	Execute(ctx context.Context, conn Conn, plan models.ExecutionPlan) (*models.ResultSet, error)

	// ClassifyError maps a driver error to a caller-safe error, or returns
	// nil when the error is not one the dialect recognises.
	ClassifyError(err error) *apperrors.Error

	// NormalizeType maps a native type name to the shared vocabulary.
	NormalizeType(native string) models.DataType

	SchemaIntrospector
}

// SchemaIntrospector reads catalog metadata through a leased connection.
type SchemaIntrospector interface {
	DiscoverTables(ctx context.Context, conn Conn) ([]TableRef, error)
	DiscoverColumns(ctx context.Context, conn Conn) ([]models.SchemaColumn, error)
	DiscoverRelationships(ctx context.Context, conn Conn) ([]models.SchemaRelationship, error)

	// TableCountPlan returns a plan counting every row in table.
	TableCountPlan(table TableRef) models.ExecutionPlan

	// DisplayName renders a TableRef the way responses report table names.
	DisplayName(table TableRef) string
}
