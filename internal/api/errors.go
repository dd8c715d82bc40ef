package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/querymind/querymind/internal/assistant"
	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/export"
	"github.com/querymind/querymind/internal/history"
	"github.com/querymind/querymind/internal/nl2sql"
	"github.com/querymind/querymind/internal/query"
	"github.com/querymind/querymind/internal/sqlguard"
)

// writeServiceError maps pipeline errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	if extra == nil {
		extra = map[string]any{}
	}
	var (
		validation *connections.ValidationError
		rejection  *sqlguard.RejectionError
	)
	switch {
	case errors.Is(err, assistant.ErrNoActiveConnection):
		writeError(ctx, w, http.StatusBadRequest, "NO_ACTIVE_CONNECTION", "no active database connection; activate one first", false, nil)
	case errors.Is(err, assistant.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, connections.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "CONNECTION_NOT_FOUND", "connection was not found", false, nil)
	case errors.As(err, &validation):
		extra["fields"] = validation.Fields
		writeError(ctx, w, http.StatusBadRequest, "INVALID_CONNECTION", err.Error(), false, extra)
	case errors.Is(err, connections.ErrInvalid):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_CONNECTION", err.Error(), false, extra)
	case errors.As(err, &rejection):
		if rejection.Keyword != "" {
			extra["keyword"] = rejection.Keyword
		}
		writeError(ctx, w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, extra)
	case errors.Is(err, sqlguard.ErrNotReadOnly), errors.Is(err, sqlguard.ErrEmptyStatement):
		writeError(ctx, w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, extra)
	case errors.Is(err, query.ErrExecution):
		extra["details"] = err.Error()
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, extra)
	case errors.Is(err, nl2sql.ErrNotConfigured):
		writeError(ctx, w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured; set an AI API key", false, nil)
	case errors.Is(err, nl2sql.ErrProviderAuth):
		writeError(ctx, w, http.StatusBadGateway, "AI_AUTH_FAILED", "the AI provider rejected the API key", false, nil)
	case errors.Is(err, nl2sql.ErrMalformedResponse):
		extra["details"] = err.Error()
		writeError(ctx, w, http.StatusBadGateway, "AI_RESPONSE_INVALID", "the AI provider returned no usable SQL", true, extra)
	case errors.Is(err, nl2sql.ErrRateLimited):
		writeError(ctx, w, http.StatusTooManyRequests, "RATE_LIMITED", "translation rate limit exceeded", true, nil)
	case errors.Is(err, history.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "HISTORY_NOT_FOUND", "history entry was not found", false, nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		writeError(ctx, w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", true, nil)
	default:
		extra["details"] = err.Error()
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "request failed", true, extra)
	}
}

// writeTranslationError is writeServiceError for calls that reached the
// provider; unclassified failures become TRANSLATE_FAILED.
func writeTranslationError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	if isClassified(err) {
		writeServiceError(ctx, w, err, extra)
		return
	}
	if extra == nil {
		extra = map[string]any{}
	}
	extra["details"] = err.Error()
	writeError(ctx, w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate question", true, extra)
}

func isClassified(err error) bool {
	for _, target := range []error{
		assistant.ErrNoActiveConnection,
		assistant.ErrQuestionRequired,
		connections.ErrNotFound,
		sqlguard.ErrNotReadOnly,
		sqlguard.ErrEmptyStatement,
		query.ErrExecution,
		nl2sql.ErrNotConfigured,
		nl2sql.ErrProviderAuth,
		nl2sql.ErrMalformedResponse,
		nl2sql.ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
