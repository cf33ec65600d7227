package mssql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// DefaultSchema is reported without a schema qualifier.
const DefaultSchema = "dbo"

// Dialect renders and runs canonical queries against SQL Server.
type Dialect struct{}

// NewDialect returns the SQL Server dialect.
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Backend() models.Backend { return models.BackendODBC }

// Render rewrites ":name" markers to @p1, @p2, ...
func (d *Dialect) Render(q models.ParameterizedQuery) (models.ExecutionPlan, error) {
	return sql.Render(q, func(n int) string { return fmt.Sprintf("@p%d", n) })
}

// PagePlan uses OFFSET/FETCH, which SQL Server only accepts after ORDER BY.
// Plain statements get the clause appended in place, with ORDER BY (SELECT NULL)
// when the caller gave no ordering, so unaliased expressions, duplicate
// column names and CTEs all keep working. Statements that already limit
// rows (TOP, OFFSET) or where a constant ORDER BY is not allowed (DISTINCT,
// UNION and friends) are wrapped in a derived table instead, keeping any
// WITH clause in front.
func (d *Dialect) PagePlan(plan models.ExecutionPlan, limit, offset int) models.ExecutionPlan {
	text := strings.TrimRight(plan.DialectText, " \t\r\n")
	info := sql.InspectClauses(text)
	fetch := fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	sep, closing := " ", ""
	if sql.EndsInLineComment(text) {
		sep, closing = "\n", "\n"
	}

	switch {
	case info.HasTop || info.HasOffset || ((info.HasDistinct || info.HasSetOp) && info.OrderByAt < 0):
		prefix, body := sql.SplitCTE(text)
		text = fmt.Sprintf("%sSELECT * FROM (%s%s) AS _page ORDER BY (SELECT NULL) %s", prefix, body, closing, fetch)
	case info.OrderByAt >= 0:
		text += sep + fetch
	default:
		text += sep + "ORDER BY (SELECT NULL) " + fetch
	}
	return models.ExecutionPlan{DialectText: text, BoundValues: plan.BoundValues}
}

// CountPlan drops a trailing ORDER BY, which SQL Server rejects inside a
// derived table without TOP or OFFSET, and keeps a WITH clause in front of
// the derived table. Select lists SQL Server cannot expose from a derived
// table (unnamed or duplicate columns) fail the probe, and the total is
// then reported as unknown.
func (d *Dialect) CountPlan(plan models.ExecutionPlan) models.ExecutionPlan {
	prefix, body := sql.SplitCTE(sql.StripOrderBy(plan.DialectText))
	if sql.EndsInLineComment(body) {
		body += "\n"
	}
	return models.ExecutionPlan{
		DialectText: fmt.Sprintf("%sSELECT COUNT_BIG(*) FROM (%s) AS _count", prefix, body),
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

// ClassifyError maps SQL Server error numbers to caller-safe errors.
func (d *Dialect) ClassifyError(err error) *apperrors.Error {
	var msErr mssql.Error
	if !errors.As(err, &msErr) {
		return nil
	}

	switch msErr.Number {
	case 207, 208, 2812, 4121:
		return apperrors.WithCause(apperrors.ErrUndefinedObject, err)
	case 102, 105, 156, 170, 319, 8155, 1038:
		return apperrors.WithCause(apperrors.ErrQuerySyntax, err)
	case 229, 230, 262, 297, 300, 916, 3906:
		return apperrors.WithCause(apperrors.ErrPermissionDenied, err)
	case 206, 241, 242, 245, 8114, 8115, 8134, 8152, 2628:
		return apperrors.WithCause(apperrors.ErrInvalidValue, err)
	case 18452, 18456, 4060:
		return apperrors.WithCause(apperrors.ErrBackendUnreachable, err)
	}
	return apperrors.WithCause(apperrors.ErrQueryFailed, err)
}

// QuoteIdentifier quotes an identifier the way QUOTENAME does.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// qualifiedTableName builds [schema].[table], or [table] without a schema.
func qualifiedTableName(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

var _ datasource.Dialect = (*Dialect)(nil)
