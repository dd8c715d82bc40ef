package nl2sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/querymind/querymind/internal/config"
)

func TestStripMarkdownSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1;\n```":                      "SELECT 1;",
		"```\nSELECT 2\n```":                          "SELECT 2",
		"SELECT 3":                                    "SELECT 3",
		"  SELECT 4  ":                                "SELECT 4",
		"Here is the query:\n```sql\nSELECT 5\n```\n": "SELECT 5",
		"```SELECT 6```":                              "SELECT 6",
		"```sql\nSELECT 7":                            "SELECT 7",
	}
	for input, want := range cases {
		assert.Equal(t, want, StripMarkdownSQL(input), "input %q", input)
	}
}

func TestBuildPromptIncludesSchemaQuestionAndDialect(t *testing.T) {
	system, user := BuildPrompt(Request{Question: " top customers ", Schema: "Table: customers\n", Dialect: "DuckDB"})
	assert.Contains(t, system, "DuckDB")
	assert.Contains(t, user, "Table: customers")
	assert.Contains(t, user, "User Question: top customers\n")
	assert.Contains(t, user, "Use proper DuckDB syntax")
	assert.Contains(t, user, "SELECT only")

	_, user = BuildPrompt(Request{Question: "q"})
	assert.Contains(t, user, "PostgreSQL")
}

type countingTranslator struct {
	calls int
}

func (c *countingTranslator) Translate(context.Context, Request) (Result, error) {
	c.calls++
	return Result{SQL: "SELECT 1"}, nil
}

func TestRateLimitedRejectsWhenBudgetExhausted(t *testing.T) {
	inner := &countingTranslator{}
	limited := RateLimited(inner, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := limited.Translate(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Translate(ctx, Request{Question: "q"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedWithNilLimiterIsPassThrough(t *testing.T) {
	inner := &countingTranslator{}
	assert.Same(t, Translator(inner), RateLimited(inner, nil))
}

func TestNewSelectsProvider(t *testing.T) {
	_, err := New(config.AIConfig{Provider: config.AIProviderAnthropic})
	assert.ErrorIs(t, err, ErrNotConfigured)

	translator, err := New(config.AIConfig{Provider: config.AIProviderAnthropic, APIKey: "sk-ant"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicTranslator{}, translator)

	translator, err = New(config.AIConfig{Provider: config.AIProviderOpenAI, APIKey: "sk"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAITranslator{}, translator)

	translator, err = New(config.AIConfig{Provider: config.AIProviderOpenAI, APIKey: "sk", RateLimit: 1, RateBurst: 2})
	require.NoError(t, err)
	assert.IsType(t, &rateLimited{}, translator)
}
