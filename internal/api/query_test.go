package api

import (
	"errors"
	"strconv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/nl2sql"
)

func TestQueryExecutesSelect(t *testing.T) {
	executor := &fakeExecutor{queryResult: db.QueryResult{
		Columns:   []string{"ID", "Name"},
		Rows:      [][]any{{int64(1), "Alice"}},
		Truncated: true,
	}}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor, PreviewRowLimit: 1000})

	payload := `{"sql": "SELECT ID, Name FROM SQLUser.patients", "row_limit": 10}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if executor.lastLimit != 10 {
		t.Fatalf("expected row limit 10, got %d", executor.lastLimit)
	}
	body := decodeBody(t, rec)
	if body["truncated"] != true {
		t.Fatalf("expected truncated result, got %v", body["truncated"])
	}
}

func TestQueryPassesPositionalParams(t *testing.T) {
	executor := &fakeExecutor{queryResult: db.QueryResult{
		Columns: []string{"ID", "Name"},
		Rows:    [][]any{{int64(2), "Bob"}},
	}}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	payload := `{"sql": "SELECT ID, Name FROM SQLUser.patients WHERE Ward = ? AND Age > ?", "params": ["ICU", 40]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(executor.lastArgs) != 2 {
		t.Fatalf("expected 2 bound params, got %v", executor.lastArgs)
	}
	if executor.lastArgs[0] != "ICU" {
		t.Fatalf("unexpected first param %v", executor.lastArgs[0])
	}
	if executor.lastArgs[1] != float64(40) {
		t.Fatalf("unexpected second param %v", executor.lastArgs[1])
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Executor: &fakeExecutor{}})

	for _, sql := range []string{
		"DROP TABLE SQLUser.patients",
		"DELETE FROM SQLUser.patients",
		"INSERT INTO SQLUser.patients VALUES (1)",
		"  update SQLUser.patients set Name = 'x'",
	} {
		payload := `{"sql": ` + strconv.Quote(sql) + `}`
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", sql, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error_code"] != "SQL_NOT_ALLOWED" {
			t.Fatalf("expected SQL_NOT_ALLOWED for %q, got %v", sql, body["error_code"])
		}
	}
}

func TestQueryAllowsCTE(t *testing.T) {
	executor := &fakeExecutor{queryResult: db.QueryResult{Columns: []string{"n"}}}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	payload := `{"sql": "WITH counts AS (SELECT COUNT(*) AS n FROM SQLUser.patients) SELECT n FROM counts"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestQueryExecutionFailure(t *testing.T) {
	executor := &fakeExecutor{queryErr: errors.New("table not found")}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	payload := `{"sql": "SELECT * FROM SQLUser.missing"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(payload)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("expected QUERY_EXECUTION_FAILED, got %v", body["error_code"])
	}
}

func TestTranslateBuildsSchemaContext(t *testing.T) {
	executor := &fakeExecutor{
		tables:      []db.TableInfo{{Schema: "SQLUser", Name: "patients"}},
		columns:     []db.ColumnInfo{{Name: "ID", DataType: "INT"}, {Name: "Name", DataType: "VARCHAR(64)"}},
		queryResult: db.QueryResult{Columns: []string{"ID", "Name"}, Rows: [][]any{{int64(1), "Alice"}}},
	}
	translator := &fakeTranslator{result: nl2sql.Result{
		SQL:      "SELECT TOP 200 * FROM SQLUser.patients",
		Provider: "ollama",
		Model:    "llama3.1",
	}}
	handler := NewHandler(testConfig(t), Dependencies{
		Executor:         executor,
		Translator:       translator,
		SchemaSampleRows: 3,
	})

	payload := `{"question": "show all patients"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if translator.lastRequest.Question != "show all patients" {
		t.Fatalf("unexpected question %q", translator.lastRequest.Question)
	}
	if len(translator.lastRequest.Tables) != 1 {
		t.Fatalf("expected 1 table context, got %d", len(translator.lastRequest.Tables))
	}
	tableContext := translator.lastRequest.Tables[0]
	if tableContext.TableName != "patients" || tableContext.Schema != "SQLUser" {
		t.Fatalf("unexpected table context %+v", tableContext)
	}
	if len(tableContext.Columns) != 2 || tableContext.Columns[0] != "ID INT" {
		t.Fatalf("unexpected columns %v", tableContext.Columns)
	}
	if executor.lastLimit != 3 {
		t.Fatalf("expected sample row limit 3, got %d", executor.lastLimit)
	}

	body := decodeBody(t, rec)
	if body["sql"] != "SELECT TOP 200 * FROM SQLUser.patients" {
		t.Fatalf("unexpected sql %v", body["sql"])
	}
	if body["provider"] != "ollama" {
		t.Fatalf("unexpected provider %v", body["provider"])
	}
}

func TestTranslateNotConfigured(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Executor: &fakeExecutor{}})

	payload := `{"question": "anything"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(payload)))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestTranslateUpstreamFailure(t *testing.T) {
	translator := &fakeTranslator{err: errors.New("model not loaded")}
	handler := NewHandler(testConfig(t), Dependencies{Executor: &fakeExecutor{}, Translator: translator})

	payload := `{"question": "show all patients"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(payload)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestUISchemaEndpoint(t *testing.T) {
	executor := &fakeExecutor{
		tables:      []db.TableInfo{{Schema: "SQLUser", Name: "patients"}},
		columns:     []db.ColumnInfo{{Name: "ID", DataType: "INT"}},
		queryResult: db.QueryResult{Columns: []string{"ID"}, Rows: [][]any{{int64(1)}}},
	}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ui/schema", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	tables, _ := body["tables"].([]any)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %v", body["tables"])
	}
}
