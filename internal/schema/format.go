package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	rule     = strings.Repeat("=", 80)
	thinRule = strings.Repeat("-", 80)
)

// RelationshipDiagram renders the foreign key graph as indented text.
func RelationshipDiagram(metadata Metadata) string {
	lines := []string{"\n" + rule, "DATABASE RELATIONSHIP DIAGRAM", rule + "\n"}
	if len(metadata.Relationships) == 0 {
		lines = append(lines, "No foreign key relationships found in the database.\n")
		return strings.Join(lines, "\n")
	}
	for _, from := range sortedKeys(metadata.Relationships) {
		lines = append(lines, "\n📊 "+strings.ToUpper(from))
		for _, rel := range metadata.Relationships[from] {
			lines = append(lines, fmt.Sprintf("   └─→ %s references %s.%s", rel.FromColumn, rel.ToTable, rel.ToColumn))
		}
	}
	lines = append(lines, "\n"+rule+"\n")
	return strings.Join(lines, "\n")
}

// FormatForAI renders metadata as the plain-text schema description used in
// prompts. Tables and views are listed by name.
func FormatForAI(metadata Metadata) string {
	var out []string
	out = append(out,
		"DATABASE: "+metadata.DatabaseName,
		"Extracted: "+metadata.ExtractedAt.Format(time.RFC3339),
		fmt.Sprintf("Total Tables: %d", metadata.TotalTables),
		fmt.Sprintf("Total Views: %d\n", metadata.TotalViews),
		RelationshipDiagram(metadata),
		rule,
		"DETAILED SCHEMA INFORMATION",
		rule,
	)

	for _, name := range sortedKeys(metadata.Tables) {
		out = append(out, formatTable(name, metadata.Tables[name])...)
	}

	if len(metadata.Views) > 0 {
		out = append(out, "\n\n"+rule, "VIEWS AND MATERIALIZED VIEWS", rule)
		for _, name := range sortedKeys(metadata.Views) {
			out = append(out, formatView(name, metadata.Views[name])...)
		}
	}
	return strings.Join(out, "\n")
}

func formatTable(name string, table Table) []string {
	out := []string{
		"\n" + rule,
		"TABLE: " + name,
		rule,
		"Type: " + table.Type,
		"Row Count: ~" + groupThousands(table.RowCount),
		"Size: " + table.Size,
	}
	if table.Comment != "" {
		out = append(out, "Description: "+table.Comment)
	}
	if len(table.PrimaryKeys) > 0 {
		out = append(out, "\nPrimary Key(s): "+strings.Join(table.PrimaryKeys, ", "))
	}

	out = append(out, fmt.Sprintf("\nCOLUMNS (%d):", len(table.Columns)))
	for _, col := range table.Columns {
		out = append(out, formatColumn(col, table.ColumnStatistics))
	}

	if len(table.ForeignKeys) > 0 {
		out = append(out, "\nFOREIGN KEYS:")
		for _, fk := range table.ForeignKeys {
			out = append(out, fmt.Sprintf("  • %s → %s.%s\n    ON UPDATE: %s, ON DELETE: %s",
				fk.Column, fk.ForeignTable, fk.ForeignColumn, fk.UpdateRule, fk.DeleteRule))
		}
	}

	if len(table.Indexes) > 0 {
		out = append(out, "\nINDEXES:")
		for _, idx := range table.Indexes {
			kind := "INDEX"
			if idx.Unique {
				kind = "UNIQUE"
			}
			if idx.Primary {
				kind = "PRIMARY KEY"
			}
			method := idx.Type
			if method == "" {
				method = "btree"
			}
			out = append(out, fmt.Sprintf("  • %s (%s, %s) on [%s]", idx.Name, kind, method, strings.Join(idx.Columns, ", ")))
		}
	}

	if len(table.SampleData) > 0 {
		out = append(out, fmt.Sprintf("\nSAMPLE DATA (first %d rows):", len(table.SampleData)))
		out = append(out, formatSamples(table.Columns, table.SampleData)...)
	}
	return out
}

func formatColumn(col Column, stats map[string]ColumnStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • %s: %s", col.Name, col.DataType)
	switch {
	case col.CharMaxLength != nil && *col.CharMaxLength != 0:
		fmt.Fprintf(&b, "(%d)", *col.CharMaxLength)
	case col.NumericPrecision != nil && *col.NumericPrecision != 0:
		fmt.Fprintf(&b, "(%d", *col.NumericPrecision)
		if col.NumericScale != nil && *col.NumericScale != 0 {
			fmt.Fprintf(&b, ",%d", *col.NumericScale)
		}
		b.WriteString(")")
	}
	if col.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT " + col.Default)
	}
	if stat, ok := stats[col.Name]; ok && stat.Error == "" {
		fmt.Fprintf(&b, " [Nulls: %s%%, Distinct: %d]", strconv.FormatFloat(stat.NullPercentage, 'f', -1, 64), stat.DistinctCount)
	}
	if col.Comment != "" {
		b.WriteString("\n    Comment: " + col.Comment)
	}
	return b.String()
}

func formatView(name string, view View) []string {
	out := []string{
		"\n" + thinRule,
		"VIEW: " + name,
		thinRule,
		"Type: " + view.Type,
	}
	if view.Comment != "" {
		out = append(out, "Description: "+view.Comment)
	}
	out = append(out, "\nDefinition:\n"+view.Definition)
	out = append(out, fmt.Sprintf("\nCOLUMNS (%d):", len(view.Columns)))
	for _, col := range view.Columns {
		out = append(out, fmt.Sprintf("  • %s: %s", col.Name, col.DataType))
	}
	if len(view.SampleData) > 0 {
		out = append(out, "\nSAMPLE DATA:")
		out = append(out, formatSamples(view.Columns, view.SampleData)...)
	}
	return out
}

func formatSamples(columns []Column, rows []map[string]any) []string {
	out := make([]string, 0, len(rows))
	for i, row := range rows {
		out = append(out, fmt.Sprintf("  Row %d: %s", i+1, renderRow(columns, row)))
	}
	return out
}

// renderRow prints a sample row as a JSON object with keys in column order.
func renderRow(columns []Column, row map[string]any) string {
	keys := make([]string, 0, len(row))
	seen := make(map[string]bool, len(row))
	for _, col := range columns {
		if _, ok := row[col.Name]; ok {
			keys = append(keys, col.Name)
			seen[col.Name] = true
		}
	}
	var rest []string
	for key := range row {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	keys = append(keys, rest...)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, jsonValue(key)+": "+jsonValue(row[key]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func jsonValue(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return strconv.Quote(fmt.Sprint(value))
	}
	return string(encoded)
}

func groupThousands(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
