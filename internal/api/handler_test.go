package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/config"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/importer"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/nl2sql"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("irisdm-test", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

type fakeExecutor struct {
	schemas     []string
	tables      []db.TableInfo
	columns     []db.ColumnInfo
	queryResult db.QueryResult
	queryErr    error
	queryFunc   func(query string, limit int) (db.QueryResult, error)
	lastArgs    []any
	exists      bool
	existsErr   error
	describeErr error

	executedOps  []schema.Operation
	executeErr   error
	droppedTable string
	lastQuery    string
	lastLimit    int
	queries      []string
}

func (f *fakeExecutor) HealthCheck(context.Context) error { return nil }

func (f *fakeExecutor) TableExists(context.Context, string, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeExecutor) ExecuteOperations(_ context.Context, ops []schema.Operation) ([]db.OperationResult, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.executedOps = append(f.executedOps, ops...)
	results := make([]db.OperationResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, db.OperationResult{Operation: op, Duration: "1ms"})
	}
	return results, nil
}

func (f *fakeExecutor) InsertRows(context.Context, schema.TableSpec, [][]string) (int64, error) {
	return 0, nil
}

func (f *fakeExecutor) Query(_ context.Context, query string, limit int, args ...any) (db.QueryResult, error) {
	f.lastQuery = query
	f.lastLimit = limit
	f.lastArgs = args
	f.queries = append(f.queries, query)
	if f.queryErr != nil {
		return db.QueryResult{}, f.queryErr
	}
	if f.queryFunc != nil {
		return f.queryFunc(query, limit)
	}
	return f.queryResult, nil
}

func (f *fakeExecutor) ListSchemas(context.Context) ([]string, error) { return f.schemas, nil }

func (f *fakeExecutor) ListTables(context.Context, string) ([]db.TableInfo, error) {
	return f.tables, nil
}

func (f *fakeExecutor) DescribeTable(context.Context, string, string) ([]db.ColumnInfo, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return f.columns, nil
}

func (f *fakeExecutor) DropTable(_ context.Context, schemaName, tableName string) error {
	f.droppedTable = schemaName + "." + tableName
	return nil
}

type fakeImporter struct {
	lastRequest importer.Request
	result      importer.Result
	err         error
}

func (f *fakeImporter) Run(_ context.Context, request importer.Request) (importer.Result, error) {
	f.lastRequest = request
	if f.err != nil {
		return importer.Result{}, f.err
	}
	return f.result, nil
}

type fakeTranslator struct {
	lastRequest nl2sql.Request
	result      nl2sql.Result
	err         error
}

func (f *fakeTranslator) Translate(_ context.Context, request nl2sql.Request) (nl2sql.Result, error) {
	f.lastRequest = request
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return f.result, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body["status"])
	}
}

func TestReadyWithoutChecks(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error { return errors.New("database unreachable") },
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error_code"] != "NOT_READY" {
		t.Fatalf("expected NOT_READY, got %v", body["error_code"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequiredWithoutMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true
	handler := NewHandler(cfg, Dependencies{Logger: slog.Default()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("expected AUTH_MIDDLEWARE_MISSING, got %v", body["error_code"])
	}
}

func TestAuthMiddlewareProtectsEndpoints(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("secret:alice:query_reader")
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}

	cfg := testConfig(t)
	cfg.Auth.Required = true
	executor := &fakeExecutor{schemas: []string{"SQLUser"}}
	handler := NewHandler(cfg, Dependencies{
		Executor:       executor,
		AuthMiddleware: auth.Middleware(slog.Default(), validator),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/schemas", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/schemas", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d body=%s", rec.Code, rec.Body.String())
	}

	// alice holds query_reader only, so admin operations are forbidden.
	req = httptest.NewRequest(http.MethodDelete, "/v1/tables/patients", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing role, got %d", rec.Code)
	}
}

func TestHealthEndpointIsPublicWhenAuthRequired(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("secret:alice:query_reader")
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}
	cfg := testConfig(t)
	cfg.Auth.Required = true
	handler := NewHandler(cfg, Dependencies{AuthMiddleware: auth.Middleware(slog.Default(), validator)})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to stay public, got %d", rec.Code)
	}
}

func TestCombineReadinessChecks(t *testing.T) {
	calls := 0
	ok := func(context.Context) error { calls++; return nil }
	failing := func(context.Context) error { return fmt.Errorf("store down") }

	combined := CombineReadinessChecks(ok, nil, failing, ok)
	err := combined(context.Background())
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("expected failing check error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected short circuit after failure, ran %d ok checks", calls)
	}
}

func TestCheckObjectStoreConfigSkipsWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStore.Enabled = false
	cfg.ObjectStore.Endpoint = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("disabled store should pass readiness, got %v", err)
	}

	cfg.ObjectStore.Enabled = true
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("enabled store without endpoint should fail readiness")
	}
}
