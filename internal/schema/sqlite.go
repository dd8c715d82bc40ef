package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querymind/querymind/internal/target"
)

const (
	sqliteColumnsQuery     = `SELECT cid, name, type, "notnull", COALESCE(dflt_value, ''), pk FROM pragma_table_info(?, ?) ORDER BY cid`
	sqlitePrimaryKeysQuery = `SELECT name FROM pragma_table_info(?, ?) WHERE pk > 0 ORDER BY pk`
	sqliteForeignKeysQuery = `SELECT id, "from", "table", COALESCE("to", ''), on_update, on_delete FROM pragma_foreign_key_list(?, ?) ORDER BY id, seq`
	sqliteIndexListQuery   = `SELECT name, "unique", origin FROM pragma_index_list(?, ?) ORDER BY name`
	sqliteIndexInfoQuery   = `SELECT name FROM pragma_index_info(?, ?) ORDER BY seqno`
)

type sqliteCatalog struct {
	db      *sql.DB
	schema  string
	dialect target.Dialect
}

func (c *sqliteCatalog) master() string {
	return c.dialect.QuoteIdent(c.schema) + ".sqlite_master"
}

func (c *sqliteCatalog) tables(ctx context.Context) ([]relation, error) {
	names, err := queryStrings(ctx, c.db,
		"SELECT name FROM "+c.master()+" WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	out := make([]relation, 0, len(names))
	for _, name := range names {
		out = append(out, relation{Name: name, Type: "BASE TABLE"})
	}
	return out, nil
}

func (c *sqliteCatalog) views(ctx context.Context) ([]relation, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, COALESCE(sql, '') FROM "+c.master()+" WHERE type = 'view' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]relation, 0)
	for rows.Next() {
		rel := relation{Type: "VIEW"}
		if err := rows.Scan(&rel.Name, &rel.Definition); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (c *sqliteCatalog) relationships(ctx context.Context) (map[string][]Relationship, error) {
	tables, err := c.tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Relationship)
	for _, table := range tables {
		fks, err := c.foreignKeys(ctx, table.Name)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			out[table.Name] = append(out[table.Name], Relationship{FromColumn: fk.Column, ToTable: fk.ForeignTable, ToColumn: fk.ForeignColumn})
		}
	}
	return out, nil
}

func (c *sqliteCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, sqliteColumnsQuery, table, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Column, 0)
	for rows.Next() {
		var (
			col          Column
			cid, notNull int
			pk           int
		)
		if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &col.Default, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Nullable = notNull == 0 && pk == 0
		col.Position = cid + 1
		out = append(out, col)
	}
	return out, rows.Err()
}

func (c *sqliteCatalog) primaryKeys(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, c.db, sqlitePrimaryKeysQuery, table, c.schema)
}

func (c *sqliteCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, sqliteForeignKeysQuery, table, c.schema)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]ForeignKey, 0)
	for rows.Next() {
		var (
			id int
			fk ForeignKey
		)
		if err := rows.Scan(&id, &fk.Column, &fk.ForeignTable, &fk.ForeignColumn, &fk.UpdateRule, &fk.DeleteRule); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk.ConstraintName = fmt.Sprintf("fk_%s_%d", table, id)
		out = append(out, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type sqliteIndex struct {
	name   string
	unique bool
	origin string
}

func (c *sqliteCatalog) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := c.db.QueryContext(ctx, sqliteIndexListQuery, table, c.schema)
	if err != nil {
		return nil, err
	}
	var listed []sqliteIndex
	for rows.Next() {
		var idx sqliteIndex
		if err := rows.Scan(&idx.name, &idx.unique, &idx.origin); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan index: %w", err)
		}
		listed = append(listed, idx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]Index, 0, len(listed))
	for _, idx := range listed {
		columns, err := queryStrings(ctx, c.db, sqliteIndexInfoQuery, idx.name, c.schema)
		if err != nil {
			return nil, err
		}
		out = append(out, Index{
			Name:    idx.name,
			Columns: columns,
			Unique:  idx.unique,
			Primary: strings.EqualFold(idx.origin, "pk"),
			Type:    "btree",
		})
	}
	return out, nil
}

// rowCount is exact for SQLite; there is no planner estimate to read.
func (c *sqliteCatalog) rowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + c.dialect.QualifiedName(c.schema, table)
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *sqliteCatalog) size(context.Context, string) (string, error) {
	return unknownSize, nil
}
