package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func int64Ptr(v int64) *int64 { return &v }

func sampleMetadata() Metadata {
	return Metadata{
		DatabaseName: "shop",
		ExtractedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalTables:  1,
		TotalViews:   1,
		Tables: map[string]Table{
			"orders": {
				Type:        "BASE TABLE",
				Comment:     "Customer orders",
				RowCount:    1234567,
				Size:        "96 MB",
				PrimaryKeys: []string{"id"},
				Columns: []Column{
					{Name: "id", DataType: "integer", NumericPrecision: int64Ptr(32), NumericScale: int64Ptr(0), Default: "nextval('orders_id_seq')"},
					{Name: "status", DataType: "character varying", CharMaxLength: int64Ptr(20), Nullable: true, Comment: "Lifecycle state"},
					{Name: "total", DataType: "numeric", NumericPrecision: int64Ptr(10), NumericScale: int64Ptr(2), Nullable: true},
				},
				ForeignKeys: []ForeignKey{{Column: "customer_id", ForeignTable: "customers", ForeignColumn: "id", UpdateRule: "NO ACTION", DeleteRule: "CASCADE"}},
				Indexes: []Index{
					{Name: "orders_pkey", Columns: []string{"id"}, Unique: true, Primary: true, Type: "btree"},
					{Name: "orders_status_idx", Columns: []string{"status", "total"}, Type: "btree"},
				},
				ColumnStatistics: map[string]ColumnStats{
					"status": {NullCount: 1, NullPercentage: 33.33, DistinctCount: 2},
					"total":  {Error: "permission denied"},
				},
				SampleData: []map[string]any{{"total": 9.5, "id": 1, "status": "paid"}},
			},
		},
		Views: map[string]View{
			"paid_orders": {Type: "VIEW", Definition: "SELECT * FROM orders WHERE status = 'paid'", Columns: []Column{{Name: "id", DataType: "integer"}}},
		},
		Relationships: map[string][]Relationship{
			"orders": {{FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}},
		},
	}
}

func TestFormatForAI(t *testing.T) {
	text := FormatForAI(sampleMetadata())

	for _, want := range []string{
		"DATABASE: shop\nExtracted: 2025-03-01T12:00:00Z\nTotal Tables: 1\nTotal Views: 1\n",
		"DATABASE RELATIONSHIP DIAGRAM",
		"📊 ORDERS\n   └─→ customer_id references customers.id",
		"TABLE: orders",
		"Row Count: ~1,234,567",
		"Size: 96 MB",
		"Description: Customer orders",
		"Primary Key(s): id",
		"COLUMNS (3):",
		"  • id: integer(32) NOT NULL DEFAULT nextval('orders_id_seq')",
		"  • status: character varying(20) NULL [Nulls: 33.33%, Distinct: 2]\n    Comment: Lifecycle state",
		"  • total: numeric(10,2) NULL\n",
		"  • customer_id → customers.id\n    ON UPDATE: NO ACTION, ON DELETE: CASCADE",
		"  • orders_pkey (PRIMARY KEY, btree) on [id]",
		"  • orders_status_idx (INDEX, btree) on [status, total]",
		`SAMPLE DATA (first 1 rows):` + "\n" + `  Row 1: {"id": 1, "status": "paid", "total": 9.5}`,
		"VIEWS AND MATERIALIZED VIEWS",
		"VIEW: paid_orders",
		"Definition:\nSELECT * FROM orders WHERE status = 'paid'",
		"  • id: integer",
	} {
		assert.Contains(t, text, want)
	}
	assert.Less(t, strings.Index(text, "TABLE: orders"), strings.Index(text, "VIEW: paid_orders"))
}

func TestRelationshipDiagramWithoutForeignKeys(t *testing.T) {
	diagram := RelationshipDiagram(Metadata{})
	assert.Contains(t, diagram, "No foreign key relationships found in the database.")
	assert.NotContains(t, diagram, "📊")
}

func TestGroupThousands(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		-1234567: "-1,234,567",
	}
	for in, want := range cases {
		assert.Equal(t, want, groupThousands(in))
	}
}
