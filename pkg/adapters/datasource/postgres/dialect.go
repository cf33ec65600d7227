package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// DefaultSchema is reported without a schema qualifier.
const DefaultSchema = "public"

// Dialect renders and runs canonical queries against PostgreSQL.
type Dialect struct{}

// NewDialect returns the PostgreSQL dialect.
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Backend() models.Backend { return models.BackendPooled }

// Render rewrites ":name" markers to $1, $2, ...
func (d *Dialect) Render(q models.ParameterizedQuery) (models.ExecutionPlan, error) {
	return sql.Render(q, func(n int) string { return "$" + strconv.Itoa(n) })
}

// PagePlan wraps the query in a derived table so caller LIMIT/ORDER BY
// clauses keep their meaning inside the page.
func (d *Dialect) PagePlan(plan models.ExecutionPlan, limit, offset int) models.ExecutionPlan {
	return models.ExecutionPlan{
		DialectText: fmt.Sprintf("SELECT * FROM (%s) AS _page LIMIT %d OFFSET %d", plan.DialectText, limit, offset),
		BoundValues: plan.BoundValues,
	}
}

func (d *Dialect) CountPlan(plan models.ExecutionPlan) models.ExecutionPlan {
	return models.ExecutionPlan{
		DialectText: fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS _count", sql.StripOrderBy(plan.DialectText)),
		BoundValues: plan.BoundValues,
	}
}

func (d *Dialect) Execute(ctx context.Context, conn datasource.Conn, plan models.ExecutionPlan) (*models.ResultSet, error) {
	rows, err := conn.Query(ctx, plan.DialectText, plan.BoundValues...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return datasource.CollectRows(rows, d.NormalizeType)
}

func (d *Dialect) NormalizeType(native string) models.DataType {
	return NormalizeType(native)
}

// ClassifyError maps SQLSTATE codes to caller-safe errors.
func (d *Dialect) ClassifyError(err error) *apperrors.Error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}

	switch pgErr.Code {
	case "42P01", "42703", "42883", "3F000":
		return apperrors.WithCause(apperrors.ErrUndefinedObject, err)
	case "42601":
		return apperrors.WithCause(apperrors.ErrQuerySyntax, err)
	case "42501", "25006":
		return apperrors.WithCause(apperrors.ErrPermissionDenied, err)
	case "42804", "42846":
		return apperrors.WithCause(apperrors.ErrInvalidValue, err)
	case "57014":
		return apperrors.WithCause(apperrors.ErrQueryTimeout, err)
	}

	if len(pgErr.Code) < 2 {
		return apperrors.WithCause(apperrors.ErrQueryFailed, err)
	}
	switch pgErr.Code[:2] {
	case "22":
		return apperrors.WithCause(apperrors.ErrInvalidValue, err)
	case "42":
		return apperrors.WithCause(apperrors.ErrQuerySyntax, err)
	case "08":
		return apperrors.WithCause(apperrors.ErrBackendUnreachable, err)
	}
	return apperrors.WithCause(apperrors.ErrQueryFailed, err)
}

// QuoteIdentifier quotes a single identifier.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// qualifiedTableName returns "schema"."table", or just "table" without a schema.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return QuoteIdentifier(tableName)
	}
	return pgx.Identifier{schemaName, tableName}.Sanitize()
}

var _ datasource.Dialect = (*Dialect)(nil)
