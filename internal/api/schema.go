package api

import (
	"net/http"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/schema"
)

func handleSchema(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	session, err := svc.Active()
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	text, err := svc.SchemaText(r.Context())
	if err != nil {
		writeSchemaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connection": session.Name,
		"dialect":    session.DB.Dialect.DisplayName(),
		"schema":     text,
	})
}

func handleMetadata(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	metadata, err := svc.Metadata(r.Context())
	if err != nil {
		writeSchemaError(w, r, err)
		return
	}
	writeMetadata(w, metadata)
}

func handleRefreshMetadata(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	svc, ok := queryAssistant(deps, w, r)
	if !ok {
		return
	}
	metadata, err := svc.RefreshMetadata(r.Context())
	if err != nil {
		writeSchemaError(w, r, err)
		return
	}
	writeMetadata(w, metadata)
}

func writeMetadata(w http.ResponseWriter, metadata schema.Metadata) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metadata":      metadata,
		"relationships": schema.RelationshipDiagram(metadata),
	})
}

func writeSchemaError(w http.ResponseWriter, r *http.Request, err error) {
	if isClassified(err) {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema metadata", true, map[string]any{"details": err.Error()})
}
