package nl2sql

import (
	"fmt"
	"regexp"
	"strings"
)

const defaultDialect = "PostgreSQL"

// BuildPrompt renders the system and user messages for a translation.
func BuildPrompt(req Request) (system, user string) {
	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = defaultDialect
	}
	system = fmt.Sprintf("You are a SQL expert. You convert natural language questions into a single read-only %s query.", dialect)
	user = fmt.Sprintf(`Convert the following natural language question into a %[1]s query.

%[2]s

User Question: %[3]s

Requirements:
1. Generate ONLY the SQL query, no explanations
2. Use proper %[1]s syntax
3. Make the query safe (SELECT only, no modifications)
4. Use appropriate JOINs if multiple tables are needed
5. Add LIMIT clauses where appropriate to prevent overwhelming results
6. Return only valid, executable SQL

SQL Query:`, dialect, strings.TrimSpace(req.Schema), strings.TrimSpace(req.Question))
	return system, user
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\n(.*?)```")

// StripMarkdownSQL extracts the statement from a fenced code block when the
// model wrapped its answer in one.
func StripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1])
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}

func extractSQL(text string) (string, error) {
	sql := StripMarkdownSQL(text)
	if sql == "" {
		return "", fmt.Errorf("%w: model returned empty SQL", ErrMalformedResponse)
	}
	return sql, nil
}
