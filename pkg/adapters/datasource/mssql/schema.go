package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

const tablesQuery = `
	SET NOCOUNT ON;
	SELECT SCHEMA_NAME(t.schema_id) AS table_schema, t.name AS table_name
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name`

// Types resolve through system_type_id so alias types report their base type.
const columnsQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CAST(c.is_nullable AS int) AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    CASE WHEN EXISTS (
	        SELECT 1 FROM sys.foreign_key_columns fkc
	        WHERE fkc.parent_object_id = c.object_id AND fkc.parent_column_id = c.column_id
	    ) THEN 1 ELSE 0 END AS is_foreign_key
	FROM sys.tables t
	INNER JOIN sys.columns c ON c.object_id = t.object_id
	INNER JOIN sys.types tp ON tp.user_type_id = c.system_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name, c.column_id`

const foreignKeysQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(fk.schema_id) AS source_schema,
	    OBJECT_NAME(fk.parent_object_id) AS source_table,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    SCHEMA_NAME(rt.schema_id) AS target_schema,
	    OBJECT_NAME(fk.referenced_object_id) AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	INNER JOIN sys.tables rt ON fk.referenced_object_id = rt.object_id
	WHERE fk.is_ms_shipped = 0
	ORDER BY source_schema, source_table, fk.name, fkc.constraint_column_id`

// DiscoverTables returns all user tables (excludes system objects).
func (d *Dialect) DiscoverTables(ctx context.Context, conn datasource.Conn) ([]datasource.TableRef, error) {
	rows, err := conn.Query(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableRef
	for rows.Next() {
		v, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, datasource.TableRef{Schema: datasource.AsString(v[0]), Name: datasource.AsString(v[1])})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func (d *Dialect) DiscoverColumns(ctx context.Context, conn datasource.Conn) ([]models.SchemaColumn, error) {
	rows, err := conn.Query(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		v, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, models.SchemaColumn{
			TableName:    d.DisplayName(datasource.TableRef{Schema: datasource.AsString(v[0]), Name: datasource.AsString(v[1])}),
			ColumnName:   datasource.AsString(v[2]),
			DataType:     NormalizeType(datasource.AsString(v[3])),
			IsNullable:   datasource.AsBool(v[4]),
			IsPrimaryKey: datasource.AsBool(v[5]),
			IsForeignKey: datasource.AsBool(v[6]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

// DiscoverRelationships returns all foreign key relationships.
func (d *Dialect) DiscoverRelationships(ctx context.Context, conn datasource.Conn) ([]models.SchemaRelationship, error) {
	rows, err := conn.Query(ctx, foreignKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var rels []models.SchemaRelationship
	for rows.Next() {
		v, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		rels = append(rels, models.SchemaRelationship{
			SourceTable:  d.DisplayName(datasource.TableRef{Schema: datasource.AsString(v[0]), Name: datasource.AsString(v[1])}),
			SourceColumn: datasource.AsString(v[2]),
			TargetTable:  d.DisplayName(datasource.TableRef{Schema: datasource.AsString(v[3]), Name: datasource.AsString(v[4])}),
			TargetColumn: datasource.AsString(v[5]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}
	return rels, nil
}

func (d *Dialect) TableCountPlan(table datasource.TableRef) models.ExecutionPlan {
	return models.ExecutionPlan{DialectText: "SELECT COUNT_BIG(*) FROM " + qualifiedTableName(table.Schema, table.Name)}
}

// DisplayName omits the schema for tables in dbo.
func (d *Dialect) DisplayName(table datasource.TableRef) string {
	if table.Schema == "" || table.Schema == DefaultSchema {
		return table.Name
	}
	return table.Schema + "." + table.Name
}
