// Package nl2sql turns natural-language questions into SQL with a hosted LLM.
package nl2sql

import (
	"context"
	"errors"
)

var (
	// ErrProviderAuth means the provider rejected the API key.
	ErrProviderAuth = errors.New("AI provider authentication failed")
	// ErrMalformedResponse means the provider answered without usable SQL.
	ErrMalformedResponse = errors.New("AI provider returned a malformed response")
	// ErrNotConfigured means no translator could be built from configuration.
	ErrNotConfigured = errors.New("AI translation is not configured")
	// ErrRateLimited means the local call budget was exhausted.
	ErrRateLimited = errors.New("AI translation rate limit exceeded")
)

type Request struct {
	Question string `json:"question"`
	// Schema is the schema description rendered for the model.
	Schema string `json:"schema"`
	// Dialect is the human-readable SQL dialect, e.g. "PostgreSQL".
	Dialect string `json:"dialect"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
