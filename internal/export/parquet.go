package export

import (
	"fmt"
	"io"
	"slices"

	"github.com/parquet-go/parquet-go"

	"github.com/querymind/querymind/internal/query"
)

type columnKind int

const (
	kindString columnKind = iota
	kindInt64
	kindDouble
	kindBoolean
)

// writeParquet infers one physical type per column from its non-null values
// and writes every column as optional.
func writeParquet(w io.Writer, columns []string, rows [][]any) error {
	names := query.UniqueNames(columns)
	kinds := make([]columnKind, len(names))
	group := make(parquet.Group, len(names))
	for i, name := range names {
		kinds[i] = inferKind(rows, i)
		group[name] = parquet.Optional(parquetNode(kinds[i]))
	}
	schema := parquet.NewSchema("query_result", group)

	// Group fields are ordered by name; map each column to its leaf index.
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	leaf := make([]int, len(names))
	for i, name := range names {
		leaf[i] = slices.Index(sorted, name)
	}

	writer := parquet.NewWriter(w, schema)
	batch := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		out := make(parquet.Row, len(names))
		for i, value := range row {
			out[leaf[i]] = parquetValue(kinds[i], value).Level(0, definitionLevel(value), leaf[i])
		}
		batch = append(batch, out)
	}
	if _, err := writer.WriteRows(batch); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetNode(kind columnKind) parquet.Node {
	switch kind {
	case kindInt64:
		return parquet.Int(64)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindBoolean:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func inferKind(rows [][]any, column int) columnKind {
	var sawInt, sawFloat, sawBool, sawOther bool
	for _, row := range rows {
		switch row[column].(type) {
		case nil:
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			sawInt = true
		case float32, float64:
			sawFloat = true
		case bool:
			sawBool = true
		default:
			sawOther = true
		}
	}
	switch {
	case sawOther || (sawBool && (sawInt || sawFloat)):
		return kindString
	case sawFloat:
		return kindDouble
	case sawInt:
		return kindInt64
	case sawBool:
		return kindBoolean
	default:
		return kindString
	}
}

func definitionLevel(value any) int {
	if value == nil {
		return 0
	}
	return 1
}

func parquetValue(kind columnKind, value any) parquet.Value {
	if value == nil {
		return parquet.Value{}
	}
	switch kind {
	case kindInt64:
		return parquet.Int64Value(toInt64(value))
	case kindDouble:
		return parquet.DoubleValue(toFloat64(value))
	case kindBoolean:
		return parquet.BooleanValue(value.(bool))
	default:
		return parquet.ByteArrayValue([]byte(textValue(value)))
	}
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	default:
		return 0
	}
}

func toFloat64(value any) float64 {
	switch v := value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return float64(toInt64(value))
	}
}
