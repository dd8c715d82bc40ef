package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/querymind/querymind/internal/auth"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/target"
)

func connectionManager(deps Dependencies, w http.ResponseWriter, r *http.Request) (*connections.Manager, bool) {
	if deps.Connections == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONNECTIONS_NOT_CONFIGURED", "connection store is not configured", false, nil)
		return nil, false
	}
	if err := requireRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, false
	}
	return deps.Connections, true
}

func handleListConnections(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	infos, err := manager.List(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	active := ""
	if deps.Assistant != nil {
		if session, err := deps.Assistant.Active(); err == nil {
			active = session.Name
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": infos,
		"active":      active,
	})
}

func handleAddConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	var input connections.Input
	if err := decodeJSON(r, &input); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection request body", false, map[string]any{"details": err.Error()})
		return
	}
	info, err := manager.Add(r.Context(), input)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func handleGetConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	info, err := manager.Describe(r.Context(), r.PathValue("name"))
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func handleDeleteConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	deleted, err := manager.Delete(r.Context(), name)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	if !deleted {
		writeServiceError(r.Context(), w, connections.ErrNotFound, nil)
		return
	}
	deactivated := false
	if deps.Assistant != nil {
		deactivated = deps.Assistant.Forget(name)
		deps.Assistant.InvalidateSchema(r.Context(), name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name, "deactivated": deactivated})
}

func handleTestConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	if _, ok := connectionManager(deps, w, r); !ok {
		return
	}
	if deps.TestConnection == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONNECTION_TEST_NOT_CONFIGURED", "connection testing is not configured", false, nil)
		return
	}
	var input connections.Input
	if err := decodeJSON(r, &input); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(input.Name) == "" {
		input.Name = "connection_test"
	}
	profile, err := connections.NewProfile(input)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	result, err := deps.TestConnection(r.Context(), profile)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleActivateConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	if _, ok := connectionManager(deps, w, r); !ok {
		return
	}
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	session, err := deps.Assistant.Activate(r.Context(), r.PathValue("name"))
	if err != nil {
		if isClassified(err) {
			writeServiceError(r.Context(), w, err, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECTION_FAILED", "failed to connect to database", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":       session.Name,
		"dialect":      session.DB.Dialect.Name,
		"database":     session.DB.Database,
		"activated_at": session.ActivatedAt,
	})
}

func handleExportConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	includePassword := false
	if raw := r.URL.Query().Get("include_password"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMETER", "include_password must be a boolean", false, nil)
			return
		}
		includePassword = parsed
	}
	exported, err := manager.Export(r.Context(), r.PathValue("name"), includePassword)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, exported)
}

func handleImportConnection(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	manager, ok := connectionManager(deps, w, r)
	if !ok {
		return
	}
	var data connections.Exported
	if err := decodeJSON(r, &data); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection import body", false, map[string]any{"details": err.Error()})
		return
	}
	name, err := manager.Import(r.Context(), data)
	if err != nil {
		writeServiceError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"imported": name})
}

// TargetTester adapts target.Test to a ConnectionTester.
func TargetTester(opts target.Options) ConnectionTester {
	return func(ctx context.Context, profile connections.Profile) (target.TestResult, error) {
		return target.Test(ctx, profile, opts)
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
