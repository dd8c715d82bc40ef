package target

import (
	"fmt"
	"strings"

	"github.com/querymind/querymind/internal/connections"
)

// Dialect captures the per-engine differences the rest of the service needs.
type Dialect struct {
	Name               string
	DriverName         string
	SupportsReadOnlyTx bool
	DefaultSchema      string
	VersionQuery       string
}

var (
	Postgres = Dialect{
		Name:               "postgres",
		DriverName:         "pgx",
		SupportsReadOnlyTx: true,
		DefaultSchema:      "public",
		VersionQuery:       "SELECT version()",
	}
	DuckDB = Dialect{
		Name:          "duckdb",
		DriverName:    "duckdb",
		DefaultSchema: "main",
		VersionQuery:  "SELECT version()",
	}
	SQLite = Dialect{
		Name:          "sqlite",
		DriverName:    "sqlite",
		DefaultSchema: "main",
		VersionQuery:  "SELECT sqlite_version()",
	}
)

func DialectFor(driver connections.Driver) (Dialect, error) {
	switch driver {
	case connections.DriverPostgres, "":
		return Postgres, nil
	case connections.DriverDuckDB:
		return DuckDB, nil
	case connections.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// DisplayName is the name used in prompts, e.g. "PostgreSQL".
func (d Dialect) DisplayName() string {
	switch d.Name {
	case "postgres":
		return "PostgreSQL"
	case "duckdb":
		return "DuckDB"
	case "sqlite":
		return "SQLite"
	default:
		return d.Name
	}
}

func (d Dialect) QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// QualifiedName quotes schema and table, omitting the schema when empty.
func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
