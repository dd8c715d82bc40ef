package querymindctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type queryResult struct {
	Question  string         `json:"question"`
	SQL       string         `json:"sql"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func (c *cli) printResult(w io.Writer, raw []byte) error {
	if c.output == outputJSON {
		return c.printJSON(w, raw)
	}
	var result queryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return &requestError{err: fmt.Errorf("decode result: %w", err)}
	}
	if result.SQL != "" {
		note(w, "%s", result.SQL)
	}
	if err := renderTable(w, result.Columns, stringRows(result.Rows)); err != nil {
		return err
	}
	suffix := ""
	if result.Truncated {
		suffix = " (truncated)"
	}
	note(w, "%d rows in %v ms%s", result.RowCount, result.Stats["duration_ms"], suffix)
	return nil
}

func (c *cli) askCommand() *cobra.Command {
	var rowLimit int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Translate a question to SQL and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.call(cmd.Context(), http.MethodPost, "/v1/query", map[string]any{
				"question":  strings.Join(args, " "),
				"row_limit": rowLimit,
			})
			if err != nil {
				return err
			}
			return c.printResult(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().IntVar(&rowLimit, "limit", 0, "maximum rows to return (server default when 0)")
	return cmd
}

func (c *cli) translateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <question>",
		Short: "Translate a question to SQL without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.call(cmd.Context(), http.MethodPost, "/v1/query/translate", map[string]any{
				"question": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return c.printJSON(cmd.OutOrStdout(), body)
			}
			var translation struct {
				SQL      string `json:"sql"`
				Provider string `json:"provider"`
				Model    string `json:"model"`
			}
			if err := json.Unmarshal(body, &translation); err != nil {
				return &requestError{err: fmt.Errorf("decode translation: %w", err)}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), translation.SQL)
			note(cmd.OutOrStdout(), "-- %s %s", translation.Provider, translation.Model)
			return nil
		},
	}
}

func (c *cli) sqlCommand() *cobra.Command {
	var rowLimit int
	cmd := &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run a read-only statement; use - to read it from stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := c.statement(args)
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodPost, "/v1/query/sql", map[string]any{
				"sql":       statement,
				"row_limit": rowLimit,
			})
			if err != nil {
				return err
			}
			return c.printResult(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().IntVar(&rowLimit, "limit", 0, "maximum rows to return (server default when 0)")
	return cmd
}

func (c *cli) statement(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		if c.opts.Stdin == nil {
			return "", fmt.Errorf("stdin is not available")
		}
		raw, err := io.ReadAll(c.opts.Stdin)
		if err != nil {
			return "", fmt.Errorf("read statement: %w", err)
		}
		return string(raw), nil
	}
	return strings.Join(args, " "), nil
}

func (c *cli) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description sent to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.call(cmd.Context(), http.MethodGet, "/v1/schema", nil)
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return c.printJSON(cmd.OutOrStdout(), body)
			}
			var response struct {
				Schema string `json:"schema"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{err: fmt.Errorf("decode schema: %w", err)}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), response.Schema)
			return err
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var (
		format      string
		out         string
		rowLimit    int
		objectStore bool
	)
	cmd := &cobra.Command{
		Use:   "export <statement>",
		Short: "Export the rows of a statement as csv, json or parquet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := c.statement(args)
			if err != nil {
				return err
			}
			payload := map[string]any{"sql": statement, "format": format, "row_limit": rowLimit}
			if objectStore {
				payload["destination"] = "object_store"
				body, err := c.call(cmd.Context(), http.MethodPost, "/v1/query/export", payload)
				if err != nil {
					return err
				}
				return c.printJSON(cmd.OutOrStdout(), body)
			}

			body, header, err := c.do(cmd.Context(), http.MethodPost, "/v1/query/export", payload)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if out == "" {
				out = fileNameFrom(header.Get("Content-Disposition"), "query_results."+format)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			note(cmd.ErrOrStderr(), "wrote %d bytes to %s", len(body), out)
			if header.Get("X-Result-Truncated") == "true" {
				note(cmd.ErrOrStderr(), "result was truncated at the export row limit")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "export format: csv, json or parquet")
	cmd.Flags().StringVar(&out, "out", "", "output file; - writes to stdout (default: server-suggested name)")
	cmd.Flags().IntVar(&rowLimit, "limit", 0, "maximum rows to export")
	cmd.Flags().BoolVar(&objectStore, "object-store", false, "store the export in the object store and print a download link")
	return cmd
}

func fileNameFrom(disposition, fallback string) string {
	_, name, found := strings.Cut(disposition, "filename=")
	if !found {
		return fallback
	}
	if unquoted, err := strconv.Unquote(strings.TrimSpace(name)); err == nil {
		name = unquoted
	}
	name = strings.Trim(name, `" `)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fallback
	}
	return name
}

func (c *cli) historyCommand() *cobra.Command {
	var (
		limit      int
		connection string
	)
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recent questions and statements, or show one entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				body, err := c.call(cmd.Context(), http.MethodGet, "/v1/history/"+url.PathEscape(args[0]), nil)
				if err != nil {
					return err
				}
				return c.printJSON(cmd.OutOrStdout(), body)
			}

			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if connection != "" {
				query.Set("connection", connection)
			}
			path := "/v1/history"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			body, err := c.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if c.output == outputJSON {
				return c.printJSON(cmd.OutOrStdout(), body)
			}
			var response struct {
				Entries []struct {
					ID         string `json:"id"`
					Connection string `json:"connection"`
					Kind       string `json:"kind"`
					Question   string `json:"question"`
					SQL        string `json:"sql"`
					Status     string `json:"status"`
					RowCount   int    `json:"row_count"`
					DurationMs int64  `json:"duration_ms"`
					CreatedAt  string `json:"created_at"`
				} `json:"entries"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{err: fmt.Errorf("decode history: %w", err)}
			}
			rows := make([][]string, 0, len(response.Entries))
			for _, entry := range response.Entries {
				text := entry.Question
				if text == "" {
					text = entry.SQL
				}
				rows = append(rows, []string{
					entry.CreatedAt,
					entry.Connection,
					entry.Kind,
					entry.Status,
					strconv.Itoa(entry.RowCount),
					strconv.FormatInt(entry.DurationMs, 10),
					truncate(text, 60),
					entry.ID,
				})
			}
			return renderTable(cmd.OutOrStdout(), []string{"created", "connection", "kind", "status", "rows", "ms", "question / sql", "id"}, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (server default when 0)")
	cmd.Flags().StringVar(&connection, "connection", "", "only entries of this connection")
	return cmd
}

func truncate(value string, n int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n-1]) + "…"
}
