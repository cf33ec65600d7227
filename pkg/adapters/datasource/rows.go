package datasource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// TypeNormalizer maps a driver-reported native type name onto the shared vocabulary.
type TypeNormalizer func(native string) models.DataType

// CollectRows drains rows into a ResultSet and closes them. Column types
// come from driver metadata; value sniffing is used only for columns whose
// metadata is absent or unmapped.
func CollectRows(rows Rows, normalize TypeNormalizer) (*models.ResultSet, error) {
	defer rows.Close()

	cols := rows.Columns()
	rs := &models.ResultSet{
		Columns:     make([]string, len(cols)),
		Rows:        make([]map[string]any, 0),
		ColumnTypes: make(map[string]models.ColumnType, len(cols)),
	}

	pending := make(map[int]bool)
	for i, c := range cols {
		rs.Columns[i] = c.Name
		dt := models.DataTypeUnknown
		if c.NativeType != "" && normalize != nil {
			dt = normalize(c.NativeType)
		}
		if dt == models.DataTypeUnknown {
			pending[i] = true
			rs.ColumnTypes[c.Name] = models.ColumnTypeNull
			continue
		}
		rs.ColumnTypes[c.Name] = dt.ColumnType()
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if i >= len(values) {
				row[c.Name] = nil
				continue
			}
			v := values[i]
			if b, ok := v.([]byte); ok && rs.ColumnTypes[c.Name] != models.ColumnTypeBinary {
				v = string(b)
			}
			if pending[i] && v != nil {
				rs.ColumnTypes[c.Name] = SniffType(v)
				delete(pending, i)
			}
			row[c.Name] = v
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rs, nil
}

// SniffType infers a column type from a Go value.
func SniffType(v any) models.ColumnType {
	switch v.(type) {
	case nil:
		return models.ColumnTypeNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.ColumnTypeInteger
	case float32, float64:
		return models.ColumnTypeFloat
	case bool:
		return models.ColumnTypeBoolean
	case time.Time:
		return models.ColumnTypeDatetime
	case []byte:
		return models.ColumnTypeBinary
	}
	return models.ColumnTypeString
}

// QueryScalarInt64 runs plan and returns the first column of its first row
// as an int64. Used for COUNT probes.
func QueryScalarInt64(ctx context.Context, conn Conn, plan models.ExecutionPlan) (int64, error) {
	rows, err := conn.Query(ctx, plan.DialectText, plan.BoundValues...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("count query returned no rows")
	}
	values, err := rows.Values()
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("count query returned no columns")
	}
	n, err := AsInt64(values[0])
	if err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// AsInt64 converts the integer shapes drivers return for counts.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value type %T", v)
}

// AsString renders catalog values, which drivers may return as bytes.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

// AsBool reads catalog flags returned as bool, integer or "YES"/"NO".
func AsBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int32:
		return b != 0
	case int:
		return b != 0
	case string:
		return b == "YES" || b == "yes" || b == "true" || b == "1"
	case []byte:
		return AsBool(string(b))
	}
	return false
}
