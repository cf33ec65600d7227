package postgres

import (
	"database/sql/driver"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
)

// pgRows adapts pgx.Rows. Native type names come from the connection's
// type map, so the names match pg_type.typname (int4, _text, timestamptz).
type pgRows struct {
	rows    pgx.Rows
	typeMap *pgtype.Map
}

func (r *pgRows) Columns() []datasource.ColumnMeta {
	fds := r.rows.FieldDescriptions()
	cols := make([]datasource.ColumnMeta, len(fds))
	for i, fd := range fds {
		cols[i] = datasource.ColumnMeta{Name: fd.Name, NativeType: typeName(r.typeMap, fd.DataTypeOID)}
	}
	return cols
}

func (r *pgRows) Next() bool { return r.rows.Next() }

func (r *pgRows) Values() ([]any, error) {
	values, err := r.rows.Values()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = jsonValue(v)
	}
	return values, nil
}

func (r *pgRows) Err() error { return r.rows.Err() }

func (r *pgRows) Close() error {
	r.rows.Close()
	return nil
}

func typeName(m *pgtype.Map, oid uint32) string {
	if m == nil {
		return ""
	}
	if t, ok := m.TypeForOID(oid); ok {
		return t.Name
	}
	return ""
}

// jsonValue converts pgx's decoded values into shapes that encode cleanly
// as JSON. Numerics become float64, UUIDs their canonical string.
func jsonValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int16, int32, int64, float32, float64, []byte, time.Time:
		return val
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	case netip.Prefix:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil
		}
		return dv
	}
	return v
}
