package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/sqlguard"
	"github.com/querymind/querymind/internal/target"
)

const (
	DefaultRowLimit = 1000
	DefaultTimeout  = 30 * time.Second
)

type Executor struct {
	RowLimit int
	Timeout  time.Duration
}

func NewExecutor(rowLimit int, timeout time.Duration) *Executor {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{RowLimit: rowLimit, Timeout: timeout}
}

// Execute guards the statement, then runs it with a row limit. One extra row
// is fetched to detect truncation. Postgres statements run inside a
// read-only transaction; file databases are opened read-only instead.
func (e *Executor) Execute(ctx context.Context, db *target.DB, request Request) (Result, error) {
	if db == nil || db.SQL == nil {
		return Result{}, errors.New("target database is required")
	}
	stmt, err := sqlguard.Check(request.SQL)
	if err != nil {
		var rejection *sqlguard.RejectionError
		if errors.As(err, &rejection) {
			observability.IncrementGuardRejection(rejection.Keyword)
		}
		return Result{}, err
	}

	limit := request.RowLimit
	if limit <= 0 || limit > e.RowLimit {
		limit = e.RowLimit
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sqlText := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", stmt.SQL, limit+1)
	columns, rows, err := run(ctx, db, sqlText)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveQuery(db.Dialect.Name, "failed", -1, elapsed)
		return Result{}, &ExecutionError{SQL: stmt.SQL, Err: err}
	}

	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}
	observability.ObserveQuery(db.Dialect.Name, "succeeded", len(rows), elapsed)
	return Result{
		SQL:       stmt.SQL,
		Columns:   columns,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: truncated,
		Duration:  elapsed,
	}, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func run(ctx context.Context, db *target.DB, sqlText string) ([]string, [][]any, error) {
	if !db.Dialect.SupportsReadOnlyTx {
		return collect(ctx, db.SQL, sqlText)
	}
	tx, err := db.SQL.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return collect(ctx, tx, sqlText)
}

func collect(ctx context.Context, q queryer, sqlText string) ([]string, [][]any, error) {
	rows, err := q.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case fmt.Stringer:
			if _, isTime := value.(time.Time); isTime {
				normalized[i] = typed
				continue
			}
			normalized[i] = typed.String()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
