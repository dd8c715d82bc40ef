package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/querymind/querymind/internal/query"
)

// Write encodes rows in the given format. Every row must have one value per
// column.
func Write(w io.Writer, f Format, columns []string, rows [][]any) error {
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	switch f {
	case FormatCSV, "":
		return writeCSV(w, columns, rows)
	case FormatJSON:
		return writeJSON(w, columns, rows)
	case FormatParquet:
		return writeParquet(w, columns, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Encode is Write into memory.
func Encode(f Format, columns []string, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, columns []string, rows [][]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, value := range row {
			record[i] = textValue(value)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func textValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// writeJSON emits an array of objects with keys in column order.
func writeJSON(w io.Writer, columns []string, rows [][]any) error {
	names := query.UniqueNames(columns)
	keys := make([][]byte, len(names))
	for i, name := range names {
		encoded, err := json.Marshal(name)
		if err != nil {
			return err
		}
		keys[i] = encoded
	}

	bw := bufio.NewWriter(w)
	_ = bw.WriteByte('[')
	for r, row := range rows {
		if r > 0 {
			_ = bw.WriteByte(',')
		}
		_ = bw.WriteByte('{')
		for i, value := range row {
			if i > 0 {
				_ = bw.WriteByte(',')
			}
			encoded, err := json.Marshal(jsonValue(value))
			if err != nil {
				return fmt.Errorf("encode %s: %w", names[i], err)
			}
			_, _ = bw.Write(keys[i])
			_ = bw.WriteByte(':')
			_, _ = bw.Write(encoded)
		}
		_ = bw.WriteByte('}')
	}
	_ = bw.WriteByte(']')
	return bw.Flush()
}

func jsonValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}
