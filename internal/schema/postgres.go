package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/querymind/querymind/internal/target"
)

const (
	postgresTablesQuery = `SELECT t.table_name, t.table_type, COALESCE(obj_description(c.oid, 'pg_class'), '')
FROM information_schema.tables t
LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
LEFT JOIN pg_catalog.pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name`

	postgresViewsQuery = `SELECT t.table_name, t.table_type, COALESCE(obj_description(c.oid, 'pg_class'), ''), COALESCE(pg_get_viewdef(c.oid, true), '')
FROM information_schema.tables t
LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
LEFT JOIN pg_catalog.pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
WHERE t.table_schema = $1 AND t.table_type = 'VIEW'
UNION ALL
SELECT m.matviewname, 'MATERIALIZED VIEW', COALESCE(obj_description(c.oid, 'pg_class'), ''), COALESCE(m.definition, '')
FROM pg_catalog.pg_matviews m
JOIN pg_catalog.pg_namespace n ON n.nspname = m.schemaname
JOIN pg_catalog.pg_class c ON c.relname = m.matviewname AND c.relnamespace = n.oid
WHERE m.schemaname = $1
ORDER BY 1`

	postgresColumnsQuery = `SELECT c.column_name, c.data_type, c.character_maximum_length, c.numeric_precision, c.numeric_scale,
	c.is_nullable, COALESCE(c.column_default, ''),
	COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position), ''),
	c.ordinal_position
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

	postgresPrimaryKeysQuery = `SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY a.attnum`

	postgresForeignKeysQuery = `SELECT kcu.column_name, ccu.table_name, ccu.column_name, rc.constraint_name, rc.update_rule, rc.delete_rule
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
	ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
JOIN information_schema.referential_constraints rc
	ON tc.constraint_name = rc.constraint_name AND rc.constraint_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY rc.constraint_name, kcu.ordinal_position`

	postgresIndexesQuery = `SELECT i.relname, a.attname, ix.indisunique, ix.indisprimary, am.amname
FROM pg_class t
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_index ix ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_am am ON i.relam = am.oid
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE t.relkind = 'r' AND n.nspname = $1 AND t.relname = $2
ORDER BY i.relname, a.attnum`

	postgresRowCountQuery = `SELECT reltuples::bigint FROM pg_class WHERE oid = $1::regclass`

	postgresSizeQuery = `SELECT pg_size_pretty(pg_total_relation_size($1::regclass))`

	postgresRelationshipsQuery = `SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
	ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
ORDER BY tc.table_name`
)

type postgresCatalog struct {
	db      *sql.DB
	schema  string
	dialect target.Dialect
}

func (c *postgresCatalog) tables(ctx context.Context) ([]relation, error) {
	rows, err := c.db.QueryContext(ctx, postgresTablesQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]relation, 0)
	for rows.Next() {
		var rel relation
		if err := rows.Scan(&rel.Name, &rel.Type, &rel.Comment); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (c *postgresCatalog) views(ctx context.Context) ([]relation, error) {
	rows, err := c.db.QueryContext(ctx, postgresViewsQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]relation, 0)
	for rows.Next() {
		var rel relation
		if err := rows.Scan(&rel.Name, &rel.Type, &rel.Comment, &rel.Definition); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (c *postgresCatalog) relationships(ctx context.Context) (map[string][]Relationship, error) {
	rows, err := c.db.QueryContext(ctx, postgresRelationshipsQuery, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]Relationship)
	for rows.Next() {
		var from string
		var rel Relationship
		if err := rows.Scan(&from, &rel.FromColumn, &rel.ToTable, &rel.ToColumn); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out[from] = append(out[from], rel)
	}
	return out, rows.Err()
}

func (c *postgresCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, postgresColumnsQuery, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Column, 0)
	for rows.Next() {
		var (
			col                      Column
			length, precision, scale sql.NullInt64
			isNullable               string
		)
		if err := rows.Scan(&col.Name, &col.DataType, &length, &precision, &scale, &isNullable, &col.Default, &col.Comment, &col.Position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.CharMaxLength = nullableInt(length)
		col.NumericPrecision = nullableInt(precision)
		col.NumericScale = nullableInt(scale)
		col.Nullable = isNullable == "YES"
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *postgresCatalog) primaryKeys(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, c.db, postgresPrimaryKeysQuery, c.dialect.QualifiedName(c.schema, table))
}

func (c *postgresCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, postgresForeignKeysQuery, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]ForeignKey, 0)
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ForeignTable, &fk.ForeignColumn, &fk.ConstraintName, &fk.UpdateRule, &fk.DeleteRule); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}

func (c *postgresCatalog) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := c.db.QueryContext(ctx, postgresIndexesQuery, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		out      []Index
		position = map[string]int{}
	)
	for rows.Next() {
		var (
			name, column, kind string
			unique, primary    bool
		)
		if err := rows.Scan(&name, &column, &unique, &primary, &kind); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		i, ok := position[name]
		if !ok {
			i = len(out)
			position[name] = i
			out = append(out, Index{Name: name, Unique: unique, Primary: primary, Type: kind})
		}
		out[i].Columns = append(out[i].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Index{}
	}
	return out, nil
}

func (c *postgresCatalog) rowCount(ctx context.Context, table string) (int64, error) {
	var estimate int64
	if err := c.db.QueryRowContext(ctx, postgresRowCountQuery, c.dialect.QualifiedName(c.schema, table)).Scan(&estimate); err != nil {
		return 0, err
	}
	return estimate, nil
}

func (c *postgresCatalog) size(ctx context.Context, table string) (string, error) {
	var size string
	if err := c.db.QueryRowContext(ctx, postgresSizeQuery, c.dialect.QualifiedName(c.schema, table)).Scan(&size); err != nil {
		return "", err
	}
	return size, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}
