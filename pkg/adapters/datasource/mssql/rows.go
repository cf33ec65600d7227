package mssql

import (
	"database/sql"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
)

// sqlRows adapts *sql.Rows, scanning every column into an any.
type sqlRows struct {
	rows  *sql.Rows
	cols  []datasource.ColumnMeta
	types []string
}

func newSQLRows(rows *sql.Rows) (*sqlRows, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	r := &sqlRows{
		rows:  rows,
		cols:  make([]datasource.ColumnMeta, len(colTypes)),
		types: make([]string, len(colTypes)),
	}
	for i, ct := range colTypes {
		native := strings.ToUpper(ct.DatabaseTypeName())
		r.cols[i] = datasource.ColumnMeta{Name: ct.Name(), NativeType: native}
		r.types[i] = native
	}
	return r, nil
}

func (r *sqlRows) Columns() []datasource.ColumnMeta { return r.cols }

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]any, error) {
	values := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = convertValue(r.types[i], v)
	}
	return values, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }

func (r *sqlRows) Close() error { return r.rows.Close() }

// convertValue turns the driver's byte encodings into JSON-friendly values.
// DECIMAL and MONEY arrive as their text form; UNIQUEIDENTIFIER arrives in
// SQL Server's mixed-endian byte order.
func convertValue(native string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch native {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
		return string(b)
	case "UNIQUEIDENTIFIER":
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	case "BINARY", "VARBINARY", "IMAGE", "TIMESTAMP", "ROWVERSION":
		return b
	}
	return string(b)
}
