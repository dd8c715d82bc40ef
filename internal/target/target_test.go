package target

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/connections"
)

func TestDataSourceNamePostgresFromFields(t *testing.T) {
	dsn, err := DataSourceName(connections.Profile{
		Driver:   connections.DriverPostgres,
		Host:     "db.internal",
		Database: "sales",
		User:     "reader",
		Password: "p@ss word",
		SSLMode:  "require",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:5432", parsed.Host)
	assert.Equal(t, "/sales", parsed.Path)
	password, _ := parsed.User.Password()
	assert.Equal(t, "p@ss word", password)
	assert.Equal(t, "require", parsed.Query().Get("sslmode"))
	assert.Equal(t, "on", parsed.Query().Get("default_transaction_read_only"))
}

func TestDataSourceNamePostgresKeepsDSNParams(t *testing.T) {
	dsn, err := DataSourceName(connections.Profile{
		DSN:     "postgres://u:p@h:6000/db?sslmode=disable&application_name=custom",
		SSLMode: "require",
	})
	require.NoError(t, err)
	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
	assert.Equal(t, "custom", parsed.Query().Get("application_name"))
	assert.Equal(t, "on", parsed.Query().Get("default_transaction_read_only"))
}

func TestDataSourceNameFileDrivers(t *testing.T) {
	dsn, err := DataSourceName(connections.Profile{Driver: connections.DriverDuckDB, Database: "/data/w.duckdb"})
	require.NoError(t, err)
	assert.Equal(t, "/data/w.duckdb?access_mode=read_only&enable_external_access=false", dsn)

	dsn, err = DataSourceName(connections.Profile{Driver: connections.DriverSQLite, Database: "/data/app.db"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:/data/app.db?mode=ro"))

	_, err = DataSourceName(connections.Profile{Driver: connections.DriverSQLite})
	assert.Error(t, err)
	_, err = DataSourceName(connections.Profile{Driver: "oracle"})
	assert.Error(t, err)
}

func TestDialectQuoting(t *testing.T) {
	assert.Equal(t, `"weird""name"`, Postgres.QuoteIdent(`weird"name`))
	assert.Equal(t, `"public"."orders"`, Postgres.QualifiedName("public", "orders"))
	assert.Equal(t, `"orders"`, SQLite.QualifiedName("", "orders"))
	assert.Equal(t, "PostgreSQL", Postgres.DisplayName())
}

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO customers (name) VALUES ('Ada'), ('Grace')`)
	require.NoError(t, err)
	return path
}

func TestOpenSQLiteIsReadOnly(t *testing.T) {
	path := seedSQLite(t)
	db, err := Open(context.Background(), connections.Profile{Name: "local", Driver: connections.DriverSQLite, Database: path}, Options{})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, SQLite, db.Dialect)
	assert.Equal(t, "main", db.Schema)

	var count int
	require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM customers`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.SQL.Exec(`INSERT INTO customers (name) VALUES ('Linus')`)
	assert.Error(t, err)
}

func TestOpenDuckDBIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	seed, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = seed.Exec(`CREATE TABLE events (id INTEGER, kind VARCHAR)`)
	require.NoError(t, err)
	_, err = seed.Exec(`INSERT INTO events VALUES (1, 'click'), (2, 'view')`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	db, err := Open(context.Background(), connections.Profile{Driver: connections.DriverDuckDB, Database: path}, Options{})
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count))
	assert.Equal(t, 2, count)
	_, err = db.SQL.Exec(`DELETE FROM events`)
	assert.Error(t, err)
}

func TestOpenDuckDBBlocksFileAccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warehouse.duckdb")
	seed, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = seed.Exec(`CREATE TABLE events (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	secret := filepath.Join(dir, "secret.csv")
	require.NoError(t, os.WriteFile(secret, []byte("token\nhunter2\n"), 0o600))

	db, err := Open(context.Background(), connections.Profile{Driver: connections.DriverDuckDB, Database: path}, Options{})
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		"SELECT * FROM read_csv('" + secret + "')",
		"SELECT content FROM read_text('" + secret + "')",
		"SELECT * FROM '" + secret + "'",
	} {
		rows, err := db.SQL.Query(stmt)
		if err == nil {
			for rows.Next() {
			}
			err = rows.Err()
			_ = rows.Close()
		}
		assert.Error(t, err, stmt)
	}
}

func TestTestReportsVersionAndFailures(t *testing.T) {
	path := seedSQLite(t)
	result, err := Test(context.Background(), connections.Profile{Driver: connections.DriverSQLite, Database: path}, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Connection successful", result.Message)
	assert.NotEmpty(t, result.Version)

	result, err = Test(context.Background(), connections.Profile{Driver: connections.DriverSQLite, Database: filepath.Join(t.TempDir(), "missing.db")}, Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)

	_, err = Test(context.Background(), connections.Profile{Driver: "oracle"}, Options{})
	assert.Error(t, err)
}
