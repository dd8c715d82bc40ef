// Package export writes query results as CSV, JSON or Parquet files and
// uploads them to the object store.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a case-insensitive format name. Empty means CSV.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv; charset=utf-8"
	}
}

func (f Format) FileExtension() string {
	if f == "" {
		return string(FormatCSV)
	}
	return string(f)
}

// FileName is the download name offered for an export created at t.
func FileName(f Format, t time.Time) string {
	return fmt.Sprintf("query_results_%s.%s", t.UTC().Format("20060102_150405"), f.FileExtension())
}
