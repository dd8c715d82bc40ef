package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/querymind/querymind/internal/assistant"
	"github.com/querymind/querymind/internal/auth"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/export"
	"github.com/querymind/querymind/internal/history"
	"github.com/querymind/querymind/internal/localstore"
	"github.com/querymind/querymind/internal/nl2sql"
	"github.com/querymind/querymind/internal/query"
	"github.com/querymind/querymind/internal/schema"
	"github.com/querymind/querymind/internal/storage"
	"github.com/querymind/querymind/internal/target"
)

func TestHealthEndpoint(t *testing.T) {
	cfg := loadConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := loadConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"QUERYMIND_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:connection_admin|query_reader,k2:bob:query_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	env := newTestEnv(t, nil)
	env.deps.AuthMiddleware = auth.Middleware(nil, validator)
	h := NewHandler(cfg, env.deps)

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/connections", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	readerReq := httptest.NewRequest(http.MethodGet, "/v1/connections", nil)
	readerReq.Header.Set("X-API-Key", "k2")
	readerResp := httptest.NewRecorder()
	h.ServeHTTP(readerResp, readerReq)
	if readerResp.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", readerResp.Code)
	}

	adminReq := httptest.NewRequest(http.MethodGet, "/v1/connections", nil)
	adminReq.Header.Set("Authorization", "Bearer k1")
	adminResp := httptest.NewRecorder()
	h.ServeHTTP(adminResp, adminReq)
	if adminResp.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body=%s", adminResp.Code, adminResp.Body.String())
	}

	healthResp := httptest.NewRecorder()
	h.ServeHTTP(healthResp, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if healthResp.Code != http.StatusOK {
		t.Fatalf("health status = %d", healthResp.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	cfg := loadConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/console", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestConnectionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	h := NewHandler(loadConfig(t, nil), env.deps)

	created := doJSON(t, h, http.MethodPost, "/v1/connections", map[string]any{
		"name":     "shop",
		"driver":   "sqlite",
		"database": env.dbPath,
		"password": "never-returned",
	}, http.StatusCreated)
	if created["name"] != "shop" {
		t.Fatalf("created = %#v", created)
	}
	if _, ok := created["password"]; ok {
		t.Fatal("password must not be returned")
	}

	listed := doJSON(t, h, http.MethodGet, "/v1/connections", nil, http.StatusOK)
	if items, ok := listed["connections"].([]any); !ok || len(items) != 1 {
		t.Fatalf("connections = %#v", listed["connections"])
	}

	activated := doJSON(t, h, http.MethodPost, "/v1/connections/shop/activate", nil, http.StatusOK)
	if activated["active"] != "shop" || activated["dialect"] != "sqlite" {
		t.Fatalf("activated = %#v", activated)
	}

	status := doJSON(t, h, http.MethodGet, "/v1/status", nil, http.StatusOK)
	active, ok := status["active_connection"].(map[string]any)
	if !ok || active["name"] != "shop" {
		t.Fatalf("status = %#v", status)
	}

	exported := doJSON(t, h, http.MethodGet, "/v1/connections/shop/export?include_password=true", nil, http.StatusOK)
	if exported["password"] != "never-returned" {
		t.Fatalf("exported = %#v", exported)
	}

	deleted := doJSON(t, h, http.MethodDelete, "/v1/connections/shop", nil, http.StatusOK)
	if deleted["deactivated"] != true {
		t.Fatalf("deleted = %#v", deleted)
	}
	missing := doJSON(t, h, http.MethodGet, "/v1/connections/shop", nil, http.StatusNotFound)
	if missing["error_code"] != "CONNECTION_NOT_FOUND" {
		t.Fatalf("error_code = %v", missing["error_code"])
	}
}

func TestImportAndTestConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	h := NewHandler(loadConfig(t, nil), env.deps)

	imported := doJSON(t, h, http.MethodPost, "/v1/connections/import", map[string]any{
		"driver":   "sqlite",
		"database": env.dbPath,
	}, http.StatusCreated)
	name, _ := imported["imported"].(string)
	if !strings.HasPrefix(name, "imported_") {
		t.Fatalf("imported = %#v", imported)
	}

	result := doJSON(t, h, http.MethodPost, "/v1/connections/test", map[string]any{
		"driver":   "sqlite",
		"database": env.dbPath,
	}, http.StatusOK)
	if result["success"] != true {
		t.Fatalf("test result = %#v", result)
	}
}

func TestAddConnectionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/connections", map[string]any{
		"name":   "bad name!",
		"driver": "postgres",
	}, http.StatusBadRequest)
	if body["error_code"] != "INVALID_CONNECTION" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestQueryRequiresActiveConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/query/sql", map[string]any{"sql": "SELECT 1"}, http.StatusBadRequest)
	if body["error_code"] != "NO_ACTIVE_CONNECTION" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestSQLEndpointRunsAndRejects(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	result := doJSON(t, h, http.MethodPost, "/v1/query/sql", map[string]any{
		"sql":       "SELECT id, total FROM orders ORDER BY id",
		"row_limit": 2,
	}, http.StatusOK)
	if result["row_count"] != float64(2) || result["truncated"] != true {
		t.Fatalf("result = %#v", result)
	}

	rejected := doJSON(t, h, http.MethodPost, "/v1/query/sql", map[string]any{"sql": "DROP TABLE orders"}, http.StatusBadRequest)
	if rejected["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", rejected["error_code"])
	}

	failed := doJSON(t, h, http.MethodPost, "/v1/query/sql", map[string]any{"sql": "SELECT nope FROM orders"}, http.StatusBadRequest)
	if failed["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("error_code = %v", failed["error_code"])
	}
}

func TestAskEndpointReturnsResultsAndRecordsHistory(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT COUNT(*) AS n FROM orders", Provider: "fake", Model: "fake-model"}}
	env := newTestEnv(t, translator)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/query", map[string]any{"question": "how many orders?"}, http.StatusOK)
	if body["sql"] != "SELECT COUNT(*) AS n FROM orders" || body["model"] != "fake-model" {
		t.Fatalf("body = %#v", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 || results[0].(map[string]any)["n"] != float64(3) {
		t.Fatalf("results = %#v", body["results"])
	}
	if len(translator.requests) != 1 || translator.requests[0].Dialect != "SQLite" {
		t.Fatalf("translator requests = %#v", translator.requests)
	}

	listed := doJSON(t, h, http.MethodGet, "/v1/history?limit=10", nil, http.StatusOK)
	if listed["count"] != float64(1) {
		t.Fatalf("history = %#v", listed)
	}
}

func TestTranslateErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "auth", err: nl2sql.ErrProviderAuth, status: http.StatusBadGateway, code: "AI_AUTH_FAILED"},
		{name: "malformed", err: nl2sql.ErrMalformedResponse, status: http.StatusBadGateway, code: "AI_RESPONSE_INVALID"},
		{name: "rate", err: nl2sql.ErrRateLimited, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
		{name: "other", err: errors.New("upstream exploded"), status: http.StatusBadGateway, code: "TRANSLATE_FAILED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeTranslator{err: tc.err})
			env.activate(t)
			h := NewHandler(loadConfig(t, nil), env.deps)

			body := doJSON(t, h, http.MethodPost, "/v1/query/translate", map[string]any{"question": "anything"}, tc.status)
			if body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
		})
	}
}

func TestTranslateRejectsWriteStatements(t *testing.T) {
	env := newTestEnv(t, &fakeTranslator{result: nl2sql.Result{SQL: "UPDATE orders SET total = 0"}})
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/query/translate", map[string]any{"question": "zero all totals"}, http.StatusBadRequest)
	if body["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	extra, _ := body["context"].(map[string]any)
	if extra["sql"] != "UPDATE orders SET total = 0" {
		t.Fatalf("context = %#v", body["context"])
	}
}

func TestTranslateNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/query", map[string]any{"question": "anything"}, http.StatusNotImplemented)
	if body["error_code"] != "TRANSLATE_NOT_CONFIGURED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestSchemaAndMetadataEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	schemaBody := doJSON(t, h, http.MethodGet, "/v1/schema", nil, http.StatusOK)
	text, _ := schemaBody["schema"].(string)
	if !strings.Contains(text, "orders") || schemaBody["dialect"] != "SQLite" {
		t.Fatalf("schema = %#v", schemaBody)
	}

	metadataBody := doJSON(t, h, http.MethodPost, "/v1/metadata/refresh", nil, http.StatusOK)
	metadata, _ := metadataBody["metadata"].(map[string]any)
	if metadata["total_tables"] != float64(1) {
		t.Fatalf("metadata = %#v", metadataBody)
	}
}

func TestExportDownloadsCSV(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	payload, _ := json.Marshal(map[string]any{"sql": "SELECT id, customer FROM orders ORDER BY id", "format": "csv"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/export", bytes.NewReader(payload)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "query_results_") || !strings.Contains(got, ".csv") {
		t.Fatalf("Content-Disposition = %q", got)
	}
	want := "id,customer\n1,ada\n2,grace\n3,ada\n"
	if rr.Body.String() != want {
		t.Fatalf("body = %q, want %q", rr.Body.String(), want)
	}
}

func TestExportToObjectStore(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	store := &fakeObjectStore{objects: map[string][]byte{}}
	uploader, err := export.NewUploader(store, time.Minute)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	env.deps.Uploader = uploader

	disabled := NewHandler(loadConfig(t, nil), env.deps)
	body := doJSON(t, disabled, http.MethodPost, "/v1/query/export", map[string]any{
		"sql": "SELECT id FROM orders", "format": "json", "destination": "object_store",
	}, http.StatusNotImplemented)
	if body["error_code"] != "EXPORT_STORE_NOT_CONFIGURED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	h := NewHandler(loadConfig(t, map[string]string{"QUERYMIND_EXPORT_OBJECTSTORE_ENABLED": "true"}), env.deps)
	body = doJSON(t, h, http.MethodPost, "/v1/query/export", map[string]any{
		"sql": "SELECT id FROM orders", "format": "parquet", "destination": "object_store",
	}, http.StatusCreated)
	stored, _ := body["export"].(map[string]any)
	key, _ := stored["key"].(string)
	if !strings.HasPrefix(key, "exports/") || !strings.HasSuffix(key, ".parquet") {
		t.Fatalf("export = %#v", body)
	}
	if stored["url"] != "https://objects.example/"+key {
		t.Fatalf("url = %v", stored["url"])
	}
	if len(store.objects[key]) == 0 {
		t.Fatal("object was not stored")
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	env := newTestEnv(t, nil)
	env.activate(t)
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodPost, "/v1/query/export", map[string]any{"sql": "SELECT 1", "format": "xlsx"}, http.StatusBadRequest)
	if body["error_code"] != "UNSUPPORTED_FORMAT" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestHistoryNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.History = nil
	h := NewHandler(loadConfig(t, nil), env.deps)

	body := doJSON(t, h, http.MethodGet, "/v1/history", nil, http.StatusNotImplemented)
	if body["error_code"] != "HISTORY_NOT_CONFIGURED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	restricted := NewHandler(loadConfig(t, map[string]string{"QUERYMIND_CORS_ALLOWED_ORIGINS": "https://ui.example.com"}), Dependencies{})
	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	restricted.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

type testEnv struct {
	deps   Dependencies
	dbPath string
}

func newTestEnv(t *testing.T, translator nl2sql.Translator) *testEnv {
	t.Helper()
	state, err := localstore.Open(localstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("localstore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = state.Close() })

	manager := connections.NewManager(state.Connections())
	svc := &assistant.Service{
		Profiles:   manager,
		Schema:     schema.NewService(state.MetadataCache(), time.Minute, nil),
		Translator: translator,
		Executor:   query.NewExecutor(100, 5*time.Second),
		History:    &memoryHistory{},
	}
	t.Cleanup(func() { _ = svc.Close() })

	return &testEnv{
		dbPath: seedOrders(t),
		deps: Dependencies{
			Connections:    manager,
			TestConnection: TargetTester(target.Options{}),
			Assistant:      svc,
			History:        svc.History,
		},
	}
}

func (e *testEnv) activate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.deps.Connections.Add(ctx, connections.Input{Name: "shop", Driver: connections.DriverSQLite, Database: e.dbPath}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := e.deps.Assistant.Activate(ctx, "shop"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
}

func seedOrders(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, total REAL)`,
		`INSERT INTO orders (customer, total) VALUES ('ada', 10.5), ('grace', 4), ('ada', 7.25)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close seed db: %v", err)
	}
	return path
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any, wantStatus int) map[string]any {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		body = bytes.NewReader(raw)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, body))
	if rr.Code != wantStatus {
		t.Fatalf("%s %s status = %d, want %d, body=%s", method, path, rr.Code, wantStatus, rr.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
	return decoded
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("querymind-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

type fakeTranslator struct {
	requests []nl2sql.Request
	result   nl2sql.Result
	err      error
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return f.result, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *memoryHistory) Record(_ context.Context, entry history.Entry) (history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry.ID = "entry-" + string(rune('a'+len(h.entries)))
	entry.CreatedAt = time.Now().UTC()
	h.entries = append(h.entries, entry)
	return entry, nil
}

func (h *memoryHistory) List(_ context.Context, opts history.ListOptions) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	limit := opts.NormalizedLimit()
	out := make([]history.Entry, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

func (h *memoryHistory) Get(_ context.Context, id string) (history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entry := range h.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return history.Entry{}, history.ErrNotFound
}

func (h *memoryHistory) HealthCheck(context.Context) error { return nil }

type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.example/" + key, nil
}
