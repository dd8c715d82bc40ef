// Package query runs guarded statements against a target database.
package query

import (
	"errors"
	"fmt"
	"time"
)

var ErrExecution = errors.New("query execution failed")

type Request struct {
	SQL      string
	RowLimit int
	Timeout  time.Duration
}

type Result struct {
	SQL       string
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
}

// Records returns the rows as column to value maps. Repeated column names
// are suffixed as in UniqueNames.
func (r Result) Records() []map[string]any {
	names := UniqueNames(r.Columns)
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(names))
		for i, column := range names {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		out = append(out, record)
	}
	return out
}

// UniqueNames suffixes repeated column names, as a join over two tables can
// return the same name twice. A suffix never collides with another column.
func UniqueNames(columns []string) []string {
	used := make(map[string]bool, len(columns))
	out := make([]string, len(columns))
	for i, name := range columns {
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// ExecutionError wraps a failure reported by the target database.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}
