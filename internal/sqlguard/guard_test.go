package sqlguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsReadOnlyQueries(t *testing.T) {
	cases := map[string]string{
		"simple select":         "SELECT * FROM customers",
		"lowercase":             "select id, name from customers where id = 1",
		"trailing semicolon":    "SELECT 1;",
		"many semicolons":       "SELECT 1 ;; ",
		"cte":                   "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent",
		"parenthesized":         "(SELECT 1) UNION (SELECT 2)",
		"created_at column":     "SELECT created_at, updated_by, deleted_flag FROM orders",
		"keyword in literal":    "SELECT * FROM notes WHERE body = 'please DELETE me; DROP TABLE x'",
		"keyword in identifier": `SELECT "update", "insert" FROM audit`,
		"comment column":        "SELECT comment, load, export FROM reviews",
		"keyword in comment":    "SELECT 1 -- DROP TABLE users",
		"block comment":         "/* DELETE */ SELECT 1",
		"dollar quoted":         "SELECT $$ DROP TABLE x; $$ AS txt",
		"placeholder":           "SELECT * FROM t WHERE id = $1",
		"nextval as column":     "SELECT nextval FROM counters",
		"replace function":      "SELECT replace(name, '-', ' ') AS name FROM products",
		"duckdb star replace":   "SELECT * REPLACE (lower(name) AS name) FROM products",
		"escape string":         `SELECT E'it\'s', 'done' FROM t`,
		"escaped backslash":     `SELECT e'C:\\', 'x' FROM t`,
		"word ending in e":      "SELECT name FROM t WHERE type='x'",
		"quoted glob column":    `SELECT "glob", "query" FROM settings`,
	}
	for name, sql := range cases {
		t.Run(name, func(t *testing.T) {
			stmt, err := Check(sql)
			require.NoError(t, err)
			assert.Contains(t, []string{"SELECT", "WITH"}, stmt.Keyword)
			assert.True(t, IsReadOnly(sql))
		})
	}
}

func TestCheckStripsCommentsAndTrailingSemicolons(t *testing.T) {
	stmt, err := Check("  SELECT id FROM t; -- trailing note\n")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM t", stmt.SQL)
	assert.Equal(t, "SELECT", stmt.Keyword)

	stmt, err = Check("WITH x AS (SELECT 1) /* inline */ SELECT * FROM x;")
	require.NoError(t, err)
	assert.Equal(t, "WITH x AS (SELECT 1)   SELECT * FROM x", stmt.SQL)
	assert.Equal(t, "WITH", stmt.Keyword)
}

func TestCheckRejectsWrites(t *testing.T) {
	cases := map[string]string{
		"insert":             "INSERT INTO t VALUES (1)",
		"update":             "UPDATE t SET x = 1",
		"delete":             "DELETE FROM t",
		"drop":               "DROP TABLE t",
		"truncate":           "TRUNCATE t",
		"data modifying cte": "WITH gone AS (DELETE FROM t RETURNING *) SELECT * FROM gone",
		"select into":        "SELECT * INTO backup FROM t",
		"for update":         "SELECT * FROM t FOR UPDATE",
		"stacked":            "SELECT 1; DROP TABLE t",
		"stacked select":     "SELECT 1; SELECT 2",
		"set":                "SET search_path = evil",
		"call":               "CALL refresh_everything()",
		"explain analyze":    "EXPLAIN ANALYZE DELETE FROM t",
		"copy":               "COPY t TO '/tmp/x'",
		"attach":             "ATTACH 'other.db' AS other",
		"pragma":             "PRAGMA writable_schema = 1",
		"sleep":              "SELECT pg_sleep(10)",
		"load extension":     "SELECT load_extension('evil')",
		"lowercase grant":    "grant all on t to public",
		"replace into":       "REPLACE INTO t VALUES (1)",
		"quoted function":    `SELECT "pg_sleep"(10)`,
		"qualified function": "SELECT pg_catalog.pg_terminate_backend(1234)",
		"read_text":          "SELECT content FROM read_text('/etc/passwd')",
		"read_csv":           "SELECT * FROM read_csv('/etc/hosts')",
		"read_parquet":       "SELECT * FROM read_parquet('s3://bucket/*.parquet')",
		"glob":               "SELECT * FROM glob('/home/*')",
		"nested query":       "SELECT * FROM query('DELETE FROM t')",
		"query_to_xml":       "SELECT query_to_xml('SELECT pg_sleep(1)', true, true, '')",
	}
	for name, sql := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Check(sql)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotReadOnly)
			var rejection *RejectionError
			require.True(t, errors.As(err, &rejection))
			assert.NotEmpty(t, rejection.Reason)
			assert.False(t, IsReadOnly(sql))
		})
	}
}

func TestCheckReportsKeyword(t *testing.T) {
	_, err := Check("WITH gone AS (DELETE FROM t RETURNING *) SELECT * FROM gone")
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "DELETE", rejection.Keyword)

	_, err = Check("insert into t values (1)")
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "INSERT", rejection.Keyword)
	assert.Equal(t, "forbidden keyword: INSERT", rejection.Error())
}

func TestCheckRejectsEmptyAndMalformed(t *testing.T) {
	for _, sql := range []string{"", "   ", ";", "-- only a comment", "/* nothing */ ;"} {
		_, err := Check(sql)
		assert.ErrorIs(t, err, ErrEmptyStatement, "sql %q", sql)
	}

	for _, sql := range []string{"SELECT 'unterminated", "SELECT 1 /* open", "'x' SELECT 1"} {
		_, err := Check(sql)
		assert.ErrorIs(t, err, ErrNotReadOnly, "sql %q", sql)
	}
}

func TestCheckHonorsBackslashEscapesInEscapeStrings(t *testing.T) {
	cases := map[string]string{
		"line comment":   `SELECT E'\'x' , pg_terminate_backend(1234) , 'y' -- '`,
		"block comment":  `SELECT E'\'x', pg_sleep(30), 'y' /* ' */`,
		"lowercase e":    `SELECT e'\'x', pg_sleep(30), 'y' /* ' */`,
		"after operator": `SELECT 1 WHERE 'a'=E'\'', dblink('x', 'DROP TABLE t'), 'z' -- '`,
	}
	for name, sql := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Check(sql)
			var rejection *RejectionError
			require.True(t, errors.As(err, &rejection), "sql %q accepted", sql)
			assert.Equal(t, "forbidden function", rejection.Reason)
		})
	}
}

func TestCheckTreatsBackslashLiterallyInPlainStrings(t *testing.T) {
	// Standard strings end at the quote after the backslash, so the call is real.
	_, err := Check(`SELECT 'a\', pg_sleep(1), 'b'`)
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "PG_SLEEP", rejection.Keyword)

	stmt, err := Check(`SELECT 'C:\' AS dir`)
	require.NoError(t, err)
	assert.Equal(t, `SELECT 'C:\' AS dir`, stmt.SQL)
}
