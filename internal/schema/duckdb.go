package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querymind/querymind/internal/target"
)

const (
	duckdbTablesQuery = `SELECT table_name, COALESCE(comment, '')
FROM duckdb_tables()
WHERE schema_name = ? AND NOT internal AND NOT temporary
ORDER BY table_name`

	duckdbViewsQuery = `SELECT view_name, COALESCE(comment, ''), COALESCE(sql, '')
FROM duckdb_views()
WHERE schema_name = ? AND NOT internal AND NOT temporary
ORDER BY view_name`

	duckdbColumnsQuery = `SELECT column_name, data_type, character_maximum_length, numeric_precision, numeric_scale,
	is_nullable, COALESCE(column_default, ''), COALESCE(comment, ''), column_index
FROM duckdb_columns()
WHERE schema_name = ? AND table_name = ?
ORDER BY column_index`

	duckdbPrimaryKeysQuery = `SELECT unnest(constraint_column_names)
FROM duckdb_constraints()
WHERE schema_name = ? AND table_name = ? AND constraint_type = 'PRIMARY KEY'`

	duckdbForeignKeysQuery = `SELECT table_name, unnest(constraint_column_names), referenced_table, unnest(referenced_column_names), constraint_name
FROM duckdb_constraints()
WHERE schema_name = ? AND constraint_type = 'FOREIGN KEY'
ORDER BY table_name, constraint_name`

	duckdbIndexesQuery = `SELECT index_name, is_unique, is_primary, COALESCE(sql, '')
FROM duckdb_indexes()
WHERE schema_name = ? AND table_name = ?
ORDER BY index_name`

	duckdbRowCountQuery = `SELECT estimated_size FROM duckdb_tables() WHERE schema_name = ? AND table_name = ?`
)

type duckdbCatalog struct {
	db      *sql.DB
	schema  string
	dialect target.Dialect
}

func (c *duckdbCatalog) tables(ctx context.Context) ([]relation, error) {
	rows, err := c.db.QueryContext(ctx, duckdbTablesQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]relation, 0)
	for rows.Next() {
		rel := relation{Type: "BASE TABLE"}
		if err := rows.Scan(&rel.Name, &rel.Comment); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (c *duckdbCatalog) views(ctx context.Context) ([]relation, error) {
	rows, err := c.db.QueryContext(ctx, duckdbViewsQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]relation, 0)
	for rows.Next() {
		rel := relation{Type: "VIEW"}
		if err := rows.Scan(&rel.Name, &rel.Comment, &rel.Definition); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

type duckdbForeignKey struct {
	table string
	ForeignKey
}

func (c *duckdbCatalog) allForeignKeys(ctx context.Context) ([]duckdbForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, duckdbForeignKeysQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]duckdbForeignKey, 0)
	for rows.Next() {
		var fk duckdbForeignKey
		if err := rows.Scan(&fk.table, &fk.Column, &fk.ForeignTable, &fk.ForeignColumn, &fk.ConstraintName); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		// DuckDB has no referential actions.
		fk.UpdateRule = "NO ACTION"
		fk.DeleteRule = "NO ACTION"
		out = append(out, fk)
	}
	return out, rows.Err()
}

func (c *duckdbCatalog) relationships(ctx context.Context) (map[string][]Relationship, error) {
	fks, err := c.allForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Relationship)
	for _, fk := range fks {
		out[fk.table] = append(out[fk.table], Relationship{FromColumn: fk.Column, ToTable: fk.ForeignTable, ToColumn: fk.ForeignColumn})
	}
	return out, nil
}

func (c *duckdbCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	fks, err := c.allForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ForeignKey, 0)
	for _, fk := range fks {
		if fk.table == table {
			out = append(out, fk.ForeignKey)
		}
	}
	return out, nil
}

func (c *duckdbCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, duckdbColumnsQuery, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Column, 0)
	for rows.Next() {
		var (
			col                      Column
			length, precision, scale sql.NullInt64
			index                    int
		)
		if err := rows.Scan(&col.Name, &col.DataType, &length, &precision, &scale, &col.Nullable, &col.Default, &col.Comment, &index); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.CharMaxLength = nullableInt(length)
		col.NumericPrecision = nullableInt(precision)
		col.NumericScale = nullableInt(scale)
		col.Position = index + 1
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *duckdbCatalog) primaryKeys(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, c.db, duckdbPrimaryKeysQuery, c.schema, table)
}

func (c *duckdbCatalog) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := c.db.QueryContext(ctx, duckdbIndexesQuery, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Index, 0)
	for rows.Next() {
		var (
			idx       Index
			statement string
		)
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Primary, &statement); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		idx.Type = "art"
		idx.Columns = indexColumns(statement)
		out = append(out, idx)
	}
	return out, rows.Err()
}

// indexColumns reads the column list of a CREATE INDEX statement.
func indexColumns(statement string) []string {
	open := strings.LastIndex(statement, "(")
	end := strings.LastIndex(statement, ")")
	if open < 0 || end <= open {
		return []string{}
	}
	parts := strings.Split(statement[open+1:end], ",")
	columns := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.Trim(strings.TrimSpace(part), `"`)
		if name != "" {
			columns = append(columns, name)
		}
	}
	return columns
}

func (c *duckdbCatalog) rowCount(ctx context.Context, table string) (int64, error) {
	var estimate int64
	if err := c.db.QueryRowContext(ctx, duckdbRowCountQuery, c.schema, table).Scan(&estimate); err != nil {
		return 0, err
	}
	return estimate, nil
}

func (c *duckdbCatalog) size(context.Context, string) (string, error) {
	return unknownSize, nil
}
