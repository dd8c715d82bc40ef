package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/querymind/querymind/internal/target"
)

const unknownSize = "Unknown"

type relation struct {
	Name       string
	Type       string
	Comment    string
	Definition string
}

// catalog is the per-dialect set of metadata lookups. Extract drives the
// lookups in a fixed order and decides which failures are fatal.
type catalog interface {
	tables(ctx context.Context) ([]relation, error)
	views(ctx context.Context) ([]relation, error)
	relationships(ctx context.Context) (map[string][]Relationship, error)
	columns(ctx context.Context, table string) ([]Column, error)
	primaryKeys(ctx context.Context, table string) ([]string, error)
	foreignKeys(ctx context.Context, table string) ([]ForeignKey, error)
	indexes(ctx context.Context, table string) ([]Index, error)
	rowCount(ctx context.Context, table string) (int64, error)
	size(ctx context.Context, table string) (string, error)
}

type Extractor struct {
	dialect target.Dialect
	logger  *slog.Logger
	now     func() time.Time
}

func NewExtractor(dialect target.Dialect, logger *slog.Logger) (*Extractor, error) {
	switch dialect.Name {
	case target.Postgres.Name, target.DuckDB.Name, target.SQLite.Name:
	default:
		return nil, fmt.Errorf("schema extraction is not supported for %q", dialect.Name)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{dialect: dialect, logger: logger, now: time.Now}, nil
}

func (e *Extractor) catalog(db *sql.DB, schema string) catalog {
	switch e.dialect.Name {
	case target.DuckDB.Name:
		return &duckdbCatalog{db: db, schema: schema, dialect: e.dialect}
	case target.SQLite.Name:
		return &sqliteCatalog{db: db, schema: schema, dialect: e.dialect}
	default:
		return &postgresCatalog{db: db, schema: schema, dialect: e.dialect}
	}
}

// Extract reads the catalog of one schema. Listing relations, columns and
// foreign keys must succeed; primary keys, indexes, sizes, row counts and
// samples degrade to empty values when their lookups fail.
func (e *Extractor) Extract(ctx context.Context, db *sql.DB, opts Options) (Metadata, error) {
	schema := opts.Schema
	if schema == "" {
		schema = e.dialect.DefaultSchema
	}
	sampleRows := opts.SampleRows
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	cat := e.catalog(db, schema)

	tables, err := cat.tables(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("list tables: %w", err)
	}
	views, err := cat.views(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("list views: %w", err)
	}
	relationships, err := cat.relationships(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("list relationships: %w", err)
	}

	metadata := Metadata{
		DatabaseName:  opts.DatabaseName,
		ExtractedAt:   e.now().UTC(),
		TotalTables:   len(tables),
		TotalViews:    len(views),
		Tables:        make(map[string]Table, len(tables)),
		Views:         make(map[string]View, len(views)),
		Relationships: relationships,
	}

	for _, rel := range tables {
		columns, err := cat.columns(ctx, rel.Name)
		if err != nil {
			return Metadata{}, fmt.Errorf("columns of %s: %w", rel.Name, err)
		}
		primaryKeys, err := cat.primaryKeys(ctx, rel.Name)
		if err != nil {
			e.degraded("primary keys", rel.Name, err)
			primaryKeys = []string{}
		}
		foreignKeys, err := cat.foreignKeys(ctx, rel.Name)
		if err != nil {
			return Metadata{}, fmt.Errorf("foreign keys of %s: %w", rel.Name, err)
		}
		indexes, err := cat.indexes(ctx, rel.Name)
		if err != nil {
			e.degraded("indexes", rel.Name, err)
			indexes = []Index{}
		}
		rowCount, err := cat.rowCount(ctx, rel.Name)
		if err != nil {
			e.degraded("row count", rel.Name, err)
			rowCount = 0
		}
		size, err := cat.size(ctx, rel.Name)
		if err != nil {
			e.degraded("size", rel.Name, err)
			size = unknownSize
		}

		table := Table{
			Type:        rel.Type,
			Comment:     rel.Comment,
			RowCount:    rowCount,
			Size:        size,
			Columns:     columns,
			PrimaryKeys: primaryKeys,
			ForeignKeys: foreignKeys,
			Indexes:     indexes,
		}
		qualified := e.dialect.QualifiedName(schema, rel.Name)
		if opts.IncludeStatistics && rowCount > 0 {
			table.ColumnStatistics = e.statistics(ctx, db, qualified, columns)
		}
		if opts.IncludeSamples && rowCount > 0 {
			table.SampleData = e.samples(ctx, db, qualified, sampleRows)
		}
		metadata.Tables[rel.Name] = table
	}

	for _, rel := range views {
		columns, err := cat.columns(ctx, rel.Name)
		if err != nil {
			return Metadata{}, fmt.Errorf("columns of %s: %w", rel.Name, err)
		}
		view := View{
			Type:       rel.Type,
			Comment:    rel.Comment,
			Definition: rel.Definition,
			Columns:    columns,
		}
		if opts.IncludeSamples {
			view.SampleData = e.samples(ctx, db, e.dialect.QualifiedName(schema, rel.Name), sampleRows)
		}
		metadata.Views[rel.Name] = view
	}

	e.logger.Debug("schema extracted",
		"dialect", e.dialect.Name,
		"schema", schema,
		"tables", metadata.TotalTables,
		"views", metadata.TotalViews,
	)
	return metadata, nil
}

func (e *Extractor) degraded(what, table string, err error) {
	e.logger.Debug("schema lookup failed", "lookup", what, "table", table, "error", err)
}

func (e *Extractor) statistics(ctx context.Context, db *sql.DB, qualified string, columns []Column) map[string]ColumnStats {
	stats := make(map[string]ColumnStats, len(columns))
	for _, col := range columns {
		quoted := e.dialect.QuoteIdent(col.Name)
		query := fmt.Sprintf("SELECT COUNT(*), COUNT(%[1]s), COUNT(DISTINCT %[1]s) FROM %[2]s", quoted, qualified)
		var total, nonNull, distinct int64
		if err := db.QueryRowContext(ctx, query).Scan(&total, &nonNull, &distinct); err != nil {
			stats[col.Name] = ColumnStats{Error: err.Error()}
			continue
		}
		nullCount := total - nonNull
		stats[col.Name] = ColumnStats{
			NullCount:          nullCount,
			NullPercentage:     percentage(nullCount, total),
			DistinctCount:      distinct,
			DistinctPercentage: percentage(distinct, total),
		}
	}
	return stats
}

func percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}

func (e *Extractor) samples(ctx context.Context, db *sql.DB, qualified string, limit int) []map[string]any {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualified, limit))
	if err != nil {
		e.degraded("sample data", qualified, err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		e.degraded("sample data", qualified, err)
		return nil
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			e.degraded("sample data", qualified, err)
			return nil
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		e.degraded("sample data", qualified, err)
		return nil
	}
	return out
}

func nullableInt(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}
