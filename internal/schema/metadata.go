// Package schema extracts table, view and relationship metadata from a
// target database and renders it as the schema description sent to the
// language model.
package schema

import "time"

type Metadata struct {
	DatabaseName  string                    `json:"database_name"`
	ExtractedAt   time.Time                 `json:"extracted_at"`
	TotalTables   int                       `json:"total_tables"`
	TotalViews    int                       `json:"total_views"`
	Tables        map[string]Table          `json:"tables"`
	Views         map[string]View           `json:"views"`
	Relationships map[string][]Relationship `json:"relationships"`
}

type Table struct {
	Type             string                 `json:"table_type"`
	Comment          string                 `json:"comment,omitempty"`
	RowCount         int64                  `json:"row_count"`
	Size             string                 `json:"table_size"`
	Columns          []Column               `json:"columns"`
	PrimaryKeys      []string               `json:"primary_keys"`
	ForeignKeys      []ForeignKey           `json:"foreign_keys"`
	Indexes          []Index                `json:"indexes"`
	ColumnStatistics map[string]ColumnStats `json:"column_statistics,omitempty"`
	SampleData       []map[string]any       `json:"sample_data,omitempty"`
}

type View struct {
	Type       string           `json:"view_type"`
	Comment    string           `json:"comment,omitempty"`
	Definition string           `json:"definition"`
	Columns    []Column         `json:"columns"`
	SampleData []map[string]any `json:"sample_data,omitempty"`
}

// Column mirrors information_schema.columns. Length, precision and scale
// are nil when the engine does not report them.
type Column struct {
	Name             string `json:"column_name"`
	DataType         string `json:"data_type"`
	CharMaxLength    *int64 `json:"character_maximum_length"`
	NumericPrecision *int64 `json:"numeric_precision"`
	NumericScale     *int64 `json:"numeric_scale"`
	Nullable         bool   `json:"is_nullable"`
	Default          string `json:"column_default,omitempty"`
	Comment          string `json:"column_comment,omitempty"`
	Position         int    `json:"ordinal_position"`
}

type ForeignKey struct {
	Column         string `json:"column_name"`
	ForeignTable   string `json:"foreign_table_name"`
	ForeignColumn  string `json:"foreign_column_name"`
	ConstraintName string `json:"constraint_name"`
	UpdateRule     string `json:"update_rule"`
	DeleteRule     string `json:"delete_rule"`
}

type Index struct {
	Name    string   `json:"index_name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"is_unique"`
	Primary bool     `json:"is_primary"`
	Type    string   `json:"index_type"`
}

// ColumnStats holds null and distinct counts. Error is set instead when the
// counting query failed for that column.
type ColumnStats struct {
	NullCount          int64   `json:"null_count"`
	NullPercentage     float64 `json:"null_percentage"`
	DistinctCount      int64   `json:"distinct_count"`
	DistinctPercentage float64 `json:"distinct_percentage"`
	Error              string  `json:"error,omitempty"`
}

type Relationship struct {
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Options selects what Extract collects beyond the structural catalog.
type Options struct {
	DatabaseName      string
	Schema            string
	IncludeSamples    bool
	SampleRows        int
	IncludeStatistics bool
}

const (
	VariantBasic = "basic"
	VariantFull  = "full"

	DefaultSampleRows = 3
)

// BasicOptions is the variant used to build prompts: structure only.
func BasicOptions() Options {
	return Options{}
}

// FullOptions adds sample rows and column statistics.
func FullOptions(sampleRows int) Options {
	return Options{IncludeSamples: true, SampleRows: sampleRows, IncludeStatistics: true}
}

// Variant names the cache entry an Options value is stored under.
func (o Options) Variant() string {
	if o.IncludeSamples || o.IncludeStatistics {
		return VariantFull
	}
	return VariantBasic
}
