package mssql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// typeVocabulary maps SQL Server type names onto the shared vocabulary.
// Unlisted types (SQL_VARIANT, GEOGRAPHY, HIERARCHYID, ...) are unknown.
var typeVocabulary = map[string]models.DataType{
	"TINYINT":  models.DataTypeInteger,
	"SMALLINT": models.DataTypeInteger,
	"INT":      models.DataTypeInteger,
	"BIGINT":   models.DataTypeInteger,

	"DECIMAL":    models.DataTypeDecimal,
	"NUMERIC":    models.DataTypeDecimal,
	"MONEY":      models.DataTypeDecimal,
	"SMALLMONEY": models.DataTypeDecimal,
	"FLOAT":      models.DataTypeDecimal,
	"REAL":       models.DataTypeDecimal,

	"CHAR":             models.DataTypeText,
	"NCHAR":            models.DataTypeText,
	"VARCHAR":          models.DataTypeText,
	"NVARCHAR":         models.DataTypeText,
	"TEXT":             models.DataTypeText,
	"NTEXT":            models.DataTypeText,
	"SYSNAME":          models.DataTypeText,
	"UNIQUEIDENTIFIER": models.DataTypeText,
	"XML":              models.DataTypeText,
	"JSON":             models.DataTypeText,

	"BIT": models.DataTypeBoolean,

	"DATE":           models.DataTypeDatetime,
	"TIME":           models.DataTypeDatetime,
	"DATETIME":       models.DataTypeDatetime,
	"DATETIME2":      models.DataTypeDatetime,
	"SMALLDATETIME":  models.DataTypeDatetime,
	"DATETIMEOFFSET": models.DataTypeDatetime,

	"BINARY":    models.DataTypeBinary,
	"VARBINARY": models.DataTypeBinary,
	"IMAGE":     models.DataTypeBinary,
}

// NormalizeType maps a SQL Server type name onto the shared vocabulary.
func NormalizeType(native string) models.DataType {
	if dt, ok := typeVocabulary[strings.ToUpper(native)]; ok {
		return dt
	}
	return models.DataTypeUnknown
}
