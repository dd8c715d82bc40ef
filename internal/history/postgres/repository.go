package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querymind/querymind/internal/history"
)

const entryColumns = `id, connection_name, kind, question, sql_text, status, row_count, duration_ms, error_message, provider, model, created_at`

type Repository struct {
	db    *sql.DB
	newID func() string
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

// Record inserts an entry, assigning an id when it has none. CreatedAt is
// taken from the database.
func (r *Repository) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = r.newID()
	}
	if entry.Kind == "" {
		entry.Kind = history.KindAsk
	}

	query := `
INSERT INTO query_history (id, connection_name, kind, question, sql_text, status, row_count, duration_ms, error_message, provider, model)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.Connection,
		string(entry.Kind),
		entry.Question,
		entry.SQL,
		string(entry.Status),
		entry.RowCount,
		entry.DurationMs,
		entry.Error,
		entry.Provider,
		entry.Model,
	).Scan(&createdAt); err != nil {
		return history.Entry{}, fmt.Errorf("record history entry: %w", err)
	}
	entry.CreatedAt = createdAt
	return entry, nil
}

// List returns the newest entries first, optionally for one connection.
func (r *Repository) List(ctx context.Context, opts history.ListOptions) ([]history.Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if opts.Connection != "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
WHERE connection_name = $1
ORDER BY created_at DESC
LIMIT $2`, opts.Connection, opts.NormalizedLimit())
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
ORDER BY created_at DESC
LIMIT $1`, opts.NormalizedLimit())
	}
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func (r *Repository) Get(ctx context.Context, id string) (history.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return history.Entry{}, history.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, history.ErrNotFound
		}
		return history.Entry{}, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

// Prune deletes entries created before the cutoff and returns how many were
// removed.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history rows affected: %w", err)
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (history.Entry, error) {
	var (
		entry        history.Entry
		kind, status string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Connection,
		&kind,
		&entry.Question,
		&entry.SQL,
		&status,
		&entry.RowCount,
		&entry.DurationMs,
		&entry.Error,
		&entry.Provider,
		&entry.Model,
		&entry.CreatedAt,
	); err != nil {
		return history.Entry{}, err
	}
	entry.Kind = history.Kind(kind)
	entry.Status = history.Status(status)
	return entry, nil
}
