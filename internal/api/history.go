package api

import (
	"net/http"
	"strconv"

	"github.com/querymind/querymind/internal/auth"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/history"
)

func historyRecorder(deps Dependencies, w http.ResponseWriter, r *http.Request) (history.Recorder, bool) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "query history is not configured", false, nil)
		return nil, false
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, false
	}
	return deps.History, true
}

func handleListHistory(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	recorder, ok := historyRecorder(deps, w, r)
	if !ok {
		return
	}
	opts := history.ListOptions{Connection: r.URL.Query().Get("connection")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be an integer", false, nil)
			return
		}
		opts.Limit = limit
	}
	entries, err := recorder.List(r.Context(), opts)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func handleGetHistory(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	recorder, ok := historyRecorder(deps, w, r)
	if !ok {
		return
	}
	entry, err := recorder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
