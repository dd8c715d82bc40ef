package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/querymind/querymind/internal/assistant"
	"github.com/querymind/querymind/internal/auth"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/export"
	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/query"
)

type askRequest struct {
	Question string `json:"question"`
	RowLimit int    `json:"row_limit"`
}

type sqlRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type exportRequest struct {
	SQL         string `json:"sql"`
	Format      string `json:"format"`
	RowLimit    int    `json:"row_limit"`
	Destination string `json:"destination"`
}

const (
	destinationDownload    = "download"
	destinationObjectStore = "object_store"
)

type queryResponse struct {
	Question  string           `json:"question,omitempty"`
	SQL       string           `json:"sql"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Columns   []string         `json:"columns"`
	Rows      [][]any          `json:"rows"`
	Results   []map[string]any `json:"results"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Stats     map[string]any   `json:"stats"`
}

func newQueryResponse(result query.Result) queryResponse {
	return queryResponse{
		SQL:       result.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Results:   result.Records(),
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
}

func queryAssistant(deps Dependencies, w http.ResponseWriter, r *http.Request) (*assistant.Service, bool) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return nil, false
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, false
	}
	return deps.Assistant, true
}

func handleAsk(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	answer, err := svc.Ask(r.Context(), assistant.AskInput{Question: req.Question, RowLimit: req.RowLimit})
	if err != nil {
		extra := map[string]any{}
		if answer.SQL != "" {
			extra["sql"] = answer.SQL
		}
		writeTranslationError(r.Context(), w, err, extra)
		return
	}
	response := newQueryResponse(answer.Result)
	response.Question = answer.Question
	response.Provider = answer.Provider
	response.Model = answer.Model
	writeJSON(w, http.StatusOK, response)
}

func handleTranslate(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	translation, err := svc.Translate(r.Context(), req.Question)
	if err != nil {
		extra := map[string]any{}
		if translation.SQL != "" {
			extra["sql"] = translation.SQL
		}
		writeTranslationError(r.Context(), w, err, extra)
		return
	}
	writeJSON(w, http.StatusOK, translation)
}

func handleSQL(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	var req sqlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	result, err := svc.Run(r.Context(), req.SQL, req.RowLimit)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(result))
}

func handleExport(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	destination := strings.ToLower(strings.TrimSpace(req.Destination))
	switch destination {
	case "", destinationDownload:
		destination = destinationDownload
	case destinationObjectStore:
		if deps.Uploader == nil || !cfg.Export.ObjectStoreEnabled {
			writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_STORE_NOT_CONFIGURED", "object store export is not configured", false, nil)
			return
		}
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DESTINATION", fmt.Sprintf("unknown export destination %q", req.Destination), false, nil)
		return
	}

	result, err := svc.Export(r.Context(), req.SQL, req.RowLimit)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}

	if destination == destinationObjectStore {
		stored, err := deps.Uploader.Upload(r.Context(), format, "", result.Columns, result.Rows)
		if err != nil && stored.Key == "" {
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_UPLOAD_FAILED", "failed to upload export", true, map[string]any{"details": err.Error()})
			return
		}
		if err != nil && deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "export link unavailable", "key", stored.Key, "error", err)
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"export":    stored,
			"truncated": result.Truncated,
		})
		return
	}

	data, err := export.Encode(format, result.Columns, result.Rows)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	observability.IncrementExport(string(format), destinationDownload)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format, time.Now())))
	if result.Truncated {
		w.Header().Set("X-Result-Truncated", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
