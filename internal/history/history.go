// Package history records the questions and statements run through the
// service.
package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history: not found")

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Kind names the operation an entry came from.
type Kind string

const (
	KindAsk       Kind = "ask"
	KindTranslate Kind = "translate"
	KindSQL       Kind = "sql"
	KindExport    Kind = "export"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Entry struct {
	ID         string    `json:"id"`
	Connection string    `json:"connection"`
	Kind       Kind      `json:"kind"`
	Question   string    `json:"question,omitempty"`
	SQL        string    `json:"sql,omitempty"`
	Status     Status    `json:"status"`
	RowCount   int       `json:"row_count"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListOptions struct {
	Limit      int
	Connection string
}

// NormalizedLimit clamps Limit into [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (o ListOptions) NormalizedLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	HealthCheck(ctx context.Context) error
}
