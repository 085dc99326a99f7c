package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
)

func TestTableProfile(t *testing.T) {
	executor := &fakeExecutor{
		columns: []db.ColumnInfo{
			{Name: "ID", DataType: "INT", Position: 1},
			{Name: "Name", DataType: "VARCHAR(64)", Nullable: true, Position: 2},
		},
	}
	executor.queryFunc = func(query string, _ int) (db.QueryResult, error) {
		switch {
		case strings.HasPrefix(query, "SELECT COUNT(*)"):
			return db.QueryResult{Columns: []string{"count"}, Rows: [][]any{{int64(10)}}}, nil
		case strings.HasPrefix(query, "SELECT COUNT(ID)"):
			return db.QueryResult{Rows: [][]any{{int64(10), int64(10)}}}, nil
		case strings.HasPrefix(query, "SELECT MIN(ID)"):
			return db.QueryResult{Rows: [][]any{{int64(1), int64(10), 5.5}}}, nil
		case strings.HasPrefix(query, "SELECT COUNT(Name)"):
			return db.QueryResult{Rows: [][]any{{int64(8), int64(7)}}}, nil
		default:
			t.Fatalf("unexpected query %q", query)
			return db.QueryResult{}, nil
		}
	}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables/patients/profile", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["row_count"] != float64(10) {
		t.Fatalf("expected row_count 10, got %v", body["row_count"])
	}
	columns, _ := body["columns"].([]any)
	if len(columns) != 2 {
		t.Fatalf("expected 2 column profiles, got %v", body["columns"])
	}

	id, _ := columns[0].(map[string]any)
	if id["null_count"] != float64(0) || id["distinct_count"] != float64(10) {
		t.Fatalf("unexpected ID profile: %v", id)
	}
	if id["avg"] != float64(5.5) {
		t.Fatalf("expected numeric avg for ID, got %v", id["avg"])
	}

	name, _ := columns[1].(map[string]any)
	if name["null_count"] != float64(2) {
		t.Fatalf("expected 2 nulls for Name, got %v", name["null_count"])
	}
	if _, hasAvg := name["avg"]; hasAvg {
		t.Fatalf("varchar column should not report avg: %v", name)
	}
}

func TestTableProfileNotFound(t *testing.T) {
	executor := &fakeExecutor{describeErr: db.ErrNotFound}
	handler := NewHandler(testConfig(t), Dependencies{Executor: executor})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables/missing/profile", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
