// Package sqlguard decides whether a statement is a single read-only query.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotReadOnly    = errors.New("statement is not read-only")
	ErrEmptyStatement = errors.New("statement is empty")
)

// RejectionError explains why a statement was refused.
type RejectionError struct {
	Reason  string
	Keyword string
}

func (e *RejectionError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Keyword)
	}
	return e.Reason
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrNotReadOnly
}

// Statement is an accepted query.
type Statement struct {
	// SQL is the input without comments, surrounding whitespace or trailing semicolons.
	SQL string
	// Keyword is the leading keyword, SELECT or WITH.
	Keyword string
}

// forbidden words are rejected anywhere outside literals and quoted identifiers.
var forbidden = setOf(
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT",
	"DROP", "ALTER", "CREATE", "TRUNCATE", "RENAME",
	"GRANT", "REVOKE", "INTO", "COPY", "EXECUTE", "EXEC",
	"VACUUM", "REINDEX", "ATTACH", "DETACH", "PRAGMA", "INSTALL", "CHECKPOINT",
)

// statementOnly words are harmless as identifiers (a "comment" column) or
// functions (replace) and only matter as the leading keyword, which must be
// SELECT or WITH anyway.
var statementOnly = setOf(
	"REPLACE", "CALL", "DO", "LOCK", "COMMENT", "REFRESH", "CLUSTER", "SET", "RESET",
	"LOAD", "EXPORT", "IMPORT", "BEGIN", "COMMIT", "ROLLBACK", "SHOW", "EXPLAIN",
	"USE", "LISTEN", "NOTIFY", "DISCARD", "PREPARE", "DEALLOCATE", "ANALYZE",
)

// forbiddenFunctions have side effects, run nested SQL or touch the server
// filesystem. They are rejected only when called.
var forbiddenFunctions = setOf(
	// postgres
	"PG_SLEEP", "PG_SLEEP_FOR", "PG_SLEEP_UNTIL", "PG_TERMINATE_BACKEND", "PG_CANCEL_BACKEND",
	"PG_RELOAD_CONF", "PG_ROTATE_LOGFILE", "PG_READ_FILE", "PG_READ_BINARY_FILE", "PG_LS_DIR",
	"PG_STAT_FILE", "PG_ADVISORY_LOCK", "PG_ADVISORY_XACT_LOCK", "SET_CONFIG", "NEXTVAL", "SETVAL",
	"LO_IMPORT", "LO_EXPORT", "DBLINK", "DBLINK_EXEC", "QUERY_TO_XML", "QUERY_TO_XMLSCHEMA",
	"QUERY_TO_XML_AND_XMLSCHEMA",
	// duckdb
	"READ_TEXT", "READ_BLOB", "READ_CSV", "READ_CSV_AUTO", "READ_JSON", "READ_JSON_AUTO",
	"READ_JSON_OBJECTS", "READ_JSON_OBJECTS_AUTO", "READ_NDJSON", "READ_NDJSON_AUTO",
	"READ_NDJSON_OBJECTS", "READ_PARQUET", "PARQUET_SCAN", "PARQUET_METADATA", "PARQUET_SCHEMA",
	"PARQUET_FILE_METADATA", "PARQUET_KV_METADATA", "READ_XLSX", "SNIFF_CSV", "GLOB",
	"ST_READ", "DELTA_SCAN", "ICEBERG_SCAN", "SQLITE_SCAN", "POSTGRES_SCAN", "QUERY", "QUERY_TABLE",
	// sqlite
	"LOAD_EXTENSION", "READFILE", "WRITEFILE",
)

// Check accepts a single SELECT or WITH statement and rejects anything that
// could modify data or state.
func Check(sql string) (Statement, error) {
	cleaned, err := stripComments(sql)
	if err != nil {
		return Statement{}, &RejectionError{Reason: err.Error()}
	}
	trimmed := stripTrailingSemicolons(cleaned)
	tokens, err := tokenize(trimmed)
	if err != nil {
		return Statement{}, &RejectionError{Reason: err.Error()}
	}

	words := 0
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			words++
		}
	}
	if words == 0 {
		return Statement{}, ErrEmptyStatement
	}

	for i, tok := range tokens {
		if tok.kind == tokenSemicolon && i < len(tokens)-1 {
			return Statement{}, &RejectionError{Reason: "multiple statements are not allowed"}
		}
	}

	first := ""
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			first = tok.text
			break
		}
		if tok.kind != tokenOpenParen {
			return Statement{}, &RejectionError{Reason: "statement must start with SELECT or WITH"}
		}
	}
	if first != "SELECT" && first != "WITH" {
		if _, ok := statementOnly[first]; ok {
			return Statement{}, &RejectionError{Reason: "statement type is not allowed", Keyword: first}
		}
		if _, ok := forbidden[first]; ok {
			return Statement{}, &RejectionError{Reason: "forbidden keyword", Keyword: first}
		}
		return Statement{}, &RejectionError{Reason: "statement must start with SELECT or WITH", Keyword: first}
	}

	for i, tok := range tokens {
		if tok.kind != tokenWord && tok.kind != tokenQuotedWord {
			continue
		}
		if _, ok := forbidden[tok.text]; ok && tok.kind == tokenWord {
			return Statement{}, &RejectionError{Reason: "forbidden keyword", Keyword: tok.text}
		}
		if _, ok := forbiddenFunctions[tok.text]; ok && i+1 < len(tokens) && tokens[i+1].kind == tokenOpenParen {
			return Statement{}, &RejectionError{Reason: "forbidden function", Keyword: tok.text}
		}
	}

	return Statement{SQL: trimmed, Keyword: first}, nil
}

// IsReadOnly reports whether Check accepts sql.
func IsReadOnly(sql string) bool {
	_, err := Check(sql)
	return err == nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, word := range words {
		out[word] = struct{}{}
	}
	return out
}
