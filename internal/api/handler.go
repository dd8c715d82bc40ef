package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querymind/querymind/internal/assistant"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/export"
	"github.com/querymind/querymind/internal/history"
	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/target"
)

type ReadinessCheck func(ctx context.Context) error

// ConnectionTester checks ad-hoc connection parameters.
type ConnectionTester func(ctx context.Context, profile connections.Profile) (target.TestResult, error)

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Version           string
	Connections       *connections.Manager
	TestConnection    ConnectionTester
	Assistant         *assistant.Service
	History           history.Recorder
	Uploader          *export.Uploader
	UI                http.Handler
}

type route struct {
	pattern string
	handle  func(Dependencies, config.Config, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /v1/connections", handleListConnections},
	{"POST /v1/connections", handleAddConnection},
	{"POST /v1/connections/test", handleTestConnection},
	{"POST /v1/connections/import", handleImportConnection},
	{"GET /v1/connections/{name}", handleGetConnection},
	{"DELETE /v1/connections/{name}", handleDeleteConnection},
	{"POST /v1/connections/{name}/activate", handleActivateConnection},
	{"GET /v1/connections/{name}/export", handleExportConnection},
	{"GET /v1/schema", handleSchema},
	{"GET /v1/metadata", handleMetadata},
	{"POST /v1/metadata/refresh", handleRefreshMetadata},
	{"POST /v1/query", handleAsk},
	{"POST /v1/query/translate", handleTranslate},
	{"POST /v1/query/sql", handleSQL},
	{"POST /v1/query/export", handleExport},
	{"GET /v1/history", handleListHistory},
	{"GET /v1/history/{id}", handleGetHistory},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(deps, cfg, w, r)
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		handle := rt.handle
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			handle(deps, cfg, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.CORS.AllowedOrigins))
	return chain(mux, middlewares...)
}

func handleStatus(deps Dependencies, cfg config.Config, w http.ResponseWriter, _ *http.Request) {
	response := map[string]any{
		"service":           cfg.Service.Name,
		"version":           deps.Version,
		"profile":           cfg.Profile,
		"active_connection": nil,
		"endpoints":         endpointMap(),
	}
	if deps.Assistant != nil {
		if session, err := deps.Assistant.Active(); err == nil {
			response["active_connection"] = map[string]any{
				"name":         session.Name,
				"dialect":      session.DB.Dialect.Name,
				"database":     session.DB.Database,
				"activated_at": session.ActivatedAt,
			}
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func endpointMap() map[string]string {
	return map[string]string{
		"ask":         "POST /v1/query",
		"translate":   "POST /v1/query/translate",
		"sql":         "POST /v1/query/sql",
		"export":      "POST /v1/query/export",
		"schema":      "GET /v1/schema",
		"metadata":    "GET /v1/metadata",
		"connections": "GET /v1/connections",
		"history":     "GET /v1/history",
	}
}

func CheckHistory(recorder history.Recorder) ReadinessCheck {
	if recorder == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := recorder.HealthCheck(ctx); err != nil {
			return errors.New("history database is not reachable")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
