package postgres

import (
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// typeVocabulary maps pg_type names (udt_name in information_schema) onto
// the shared vocabulary. Anything not listed, including every array type
// (names starting with "_"), is unknown.
var typeVocabulary = map[string]models.DataType{
	"int2": models.DataTypeInteger,
	"int4": models.DataTypeInteger,
	"int8": models.DataTypeInteger,
	"oid":  models.DataTypeInteger,

	"numeric": models.DataTypeDecimal,
	"float4":  models.DataTypeDecimal,
	"float8":  models.DataTypeDecimal,
	"money":   models.DataTypeDecimal,

	"text":    models.DataTypeText,
	"varchar": models.DataTypeText,
	"bpchar":  models.DataTypeText,
	"char":    models.DataTypeText,
	"name":    models.DataTypeText,
	"uuid":    models.DataTypeText,
	"json":    models.DataTypeText,
	"jsonb":   models.DataTypeText,
	"xml":     models.DataTypeText,
	"inet":    models.DataTypeText,
	"cidr":    models.DataTypeText,
	"macaddr": models.DataTypeText,
	"citext":  models.DataTypeText,

	"bool": models.DataTypeBoolean,

	"date":        models.DataTypeDatetime,
	"time":        models.DataTypeDatetime,
	"timetz":      models.DataTypeDatetime,
	"timestamp":   models.DataTypeDatetime,
	"timestamptz": models.DataTypeDatetime,

	"bytea": models.DataTypeBinary,
}

// NormalizeType maps a PostgreSQL type name onto the shared vocabulary.
func NormalizeType(native string) models.DataType {
	if dt, ok := typeVocabulary[strings.ToLower(native)]; ok {
		return dt
	}
	return models.DataTypeUnknown
}
