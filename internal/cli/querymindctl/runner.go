// Package querymindctl is the command line client of the QueryMind API.
package querymindctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError is a failed API call. Run maps it to exit code 1; every
// other error is a usage error.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	defaults.Stdout, defaults.Stderr = stdout, stderr

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 0
}

type cli struct {
	opts    Options
	baseURL string
	apiKey  string
	timeout time.Duration
	output  string
}

func NewRootCommand(defaults Options) *cobra.Command {
	c := &cli{opts: defaults}
	root := &cobra.Command{
		Use:           "querymindctl",
		Short:         "Ask questions of your databases through the QueryMind API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case outputTable, outputJSON:
				return nil
			default:
				return fmt.Errorf("invalid --output %q (want table or json)", c.output)
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "QueryMind API base URL")
	flags.StringVar(&c.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	flags.StringVarP(&c.output, "output", "o", outputTable, "output format: table or json")

	root.AddCommand(
		c.rawCommand("health", "Check liveness", http.MethodGet, "/v1/health"),
		c.rawCommand("ready", "Check readiness", http.MethodGet, "/v1/ready"),
		c.rawCommand("status", "Show service status and the active connection", http.MethodGet, "/v1/status"),
		c.askCommand(),
		c.translateCommand(),
		c.sqlCommand(),
		c.schemaCommand(),
		c.exportCommand(),
		c.historyCommand(),
		c.connectionsCommand(),
	)
	return root
}

func (c *cli) rawCommand(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.call(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			return c.printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func (c *cli) httpClient() *http.Client {
	if c.opts.HTTPClient != nil {
		return c.opts.HTTPClient
	}
	return &http.Client{Timeout: c.timeout}
}

// call sends a JSON request and returns the response body of a 2xx answer.
func (c *cli) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, _, err := c.do(ctx, method, path, payload)
	return body, err
}

func (c *cli) do(ctx context.Context, method, path string, payload any) ([]byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, &requestError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, nil, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &requestError{err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, nil, &requestError{err: &httpStatusError{Status: resp.StatusCode, Body: errorMessage(body)}}
	}
	return body, resp.Header, nil
}

// errorMessage condenses the API error envelope to "CODE: message".
func errorMessage(body []byte) string {
	var envelope struct {
		Code    string         `json:"error_code"`
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		return strings.TrimSpace(string(body))
	}
	msg := envelope.Code + ": " + envelope.Message
	if details, ok := envelope.Context["details"].(string); ok && details != "" {
		msg += " (" + details + ")"
	}
	if sqlText, ok := envelope.Context["sql"].(string); ok && sqlText != "" {
		msg += "\nsql: " + sqlText
	}
	return msg
}

func (c *cli) printJSON(w io.Writer, raw []byte) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, err := fmt.Fprintln(w, pretty)
		return err
	}
	if len(raw) > 0 {
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
