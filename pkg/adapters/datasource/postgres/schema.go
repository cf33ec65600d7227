package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

const systemSchemas = `('pg_catalog', 'information_schema', 'pg_toast')`

const tablesQuery = `
	SELECT t.table_schema::text, t.table_name::text
	FROM information_schema.tables t
	WHERE t.table_type = 'BASE TABLE'
	  AND t.table_schema NOT IN ` + systemSchemas + `
	ORDER BY t.table_schema, t.table_name`

// Key flags are read from declared constraints only.
const columnsQuery = `
	SELECT
		c.table_schema::text,
		c.table_name::text,
		c.column_name::text,
		c.udt_name::text,
		c.is_nullable = 'YES' AS is_nullable,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
				AND tc.table_name = kcu.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND kcu.table_schema = c.table_schema
			  AND kcu.table_name = c.table_name
			  AND kcu.column_name = c.column_name
		) AS is_primary_key,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
				AND tc.table_name = kcu.table_name
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND kcu.table_schema = c.table_schema
			  AND kcu.table_name = c.table_name
			  AND kcu.column_name = c.column_name
		) AS is_foreign_key
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema
		AND t.table_name = c.table_name
	WHERE t.table_type = 'BASE TABLE'
	  AND c.table_schema NOT IN ` + systemSchemas + `
	ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// Composite keys are paired column by column through the key position.
const foreignKeysQuery = `
	SELECT
		sn.nspname::text AS source_schema,
		sc.relname::text AS source_table,
		sa.attname::text AS source_column,
		tn.nspname::text AS target_schema,
		tc.relname::text AS target_table,
		ta.attname::text AS target_column
	FROM pg_constraint con
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src_attnum, tgt_attnum, position)
	JOIN pg_class sc ON sc.oid = con.conrelid
	JOIN pg_namespace sn ON sn.oid = sc.relnamespace
	JOIN pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src_attnum
	JOIN pg_class tc ON tc.oid = con.confrelid
	JOIN pg_namespace tn ON tn.oid = tc.relnamespace
	JOIN pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.tgt_attnum
	WHERE con.contype = 'f'
	  AND sn.nspname NOT IN ` + systemSchemas + `
	ORDER BY sn.nspname, sc.relname, con.conname, k.position`

// DiscoverTables returns all user tables (excludes system schemas).
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
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, datasource.TableRef{
			Schema: datasource.AsString(v[0]),
			Name:   datasource.AsString(v[1]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// DiscoverColumns returns every column of every user table in ordinal order.
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
			return nil, fmt.Errorf("scan column: %w", err)
		}
		table := datasource.TableRef{Schema: datasource.AsString(v[0]), Name: datasource.AsString(v[1])}
		columns = append(columns, models.SchemaColumn{
			TableName:    d.DisplayName(table),
			ColumnName:   datasource.AsString(v[2]),
			DataType:     NormalizeType(datasource.AsString(v[3])),
			IsNullable:   datasource.AsBool(v[4]),
			IsPrimaryKey: datasource.AsBool(v[5]),
			IsForeignKey: datasource.AsBool(v[6]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
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
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		rels = append(rels, models.SchemaRelationship{
			SourceTable:  d.DisplayName(datasource.TableRef{Schema: datasource.AsString(v[0]), Name: datasource.AsString(v[1])}),
			SourceColumn: datasource.AsString(v[2]),
			TargetTable:  d.DisplayName(datasource.TableRef{Schema: datasource.AsString(v[3]), Name: datasource.AsString(v[4])}),
			TargetColumn: datasource.AsString(v[5]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return rels, nil
}

func (d *Dialect) TableCountPlan(table datasource.TableRef) models.ExecutionPlan {
	return models.ExecutionPlan{DialectText: "SELECT COUNT(*) FROM " + qualifiedTableName(table.Schema, table.Name)}
}

// DisplayName omits the schema for tables in public.
func (d *Dialect) DisplayName(table datasource.TableRef) string {
	if table.Schema == "" || table.Schema == DefaultSchema {
		return table.Name
	}
	return table.Schema + "." + table.Name
}
