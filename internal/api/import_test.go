package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/importer"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/preview"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestImportRunsService(t *testing.T) {
	runner := &fakeImporter{result: importer.Result{
		ImportID:     "imp-20260101120000-abcd1234",
		Table:        "patients",
		RowsInserted: 2,
		Duration:     120 * time.Millisecond,
		UploadKey:    "uploads/SQLUser/patients/x.csv",
	}}
	handler := NewHandler(testConfig(t), Dependencies{
		Importer:       runner,
		DefaultSchema:  "SQLUser",
		ArchiveUploads: true,
	})

	body, contentType := multipartUpload(t, "patients.csv", "ID,Name\n1,Alice\n2,Bob\n", map[string]string{
		"primary_key": "ID",
		"existence":   "drop",
		"indexes":     `[{"column": "Name", "kind": "index"}]`,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/import/patients", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	got := runner.lastRequest
	if got.Table != "patients" || got.Schema != "SQLUser" {
		t.Fatalf("unexpected target %s.%s", got.Schema, got.Table)
	}
	if len(got.Dataset.Rows) != 2 || got.Dataset.Columns[0] != "ID" {
		t.Fatalf("unexpected dataset: %+v", got.Dataset)
	}
	if len(got.PrimaryKey) != 1 || got.PrimaryKey[0] != "ID" {
		t.Fatalf("unexpected primary key: %v", got.PrimaryKey)
	}
	if got.Existence != schema.DropAndRecreate {
		t.Fatalf("expected drop policy, got %v", got.Existence)
	}
	if len(got.Indexes) != 1 || got.Indexes[0].Column != "Name" {
		t.Fatalf("unexpected indexes: %+v", got.Indexes)
	}
	if got.Archive == nil || got.Archive.Filename != "patients.csv" {
		t.Fatalf("expected archive of the upload, got %+v", got.Archive)
	}

	response := decodeBody(t, rec)
	if response["import_id"] != "imp-20260101120000-abcd1234" {
		t.Fatalf("unexpected import_id %v", response["import_id"])
	}
	if response["rows_inserted"] != float64(2) {
		t.Fatalf("unexpected rows_inserted %v", response["rows_inserted"])
	}
}

func TestImportTableExistsConflict(t *testing.T) {
	runner := &fakeImporter{err: schema.ErrTableExists}
	handler := NewHandler(testConfig(t), Dependencies{Importer: runner})

	body, contentType := multipartUpload(t, "patients.csv", "ID\n1\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import/patients", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestImportRejectsMissingFile(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Importer: &fakeImporter{}})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("primary_key", "ID")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/import/patients", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error_code"] != "FILE_REQUIRED" {
		t.Fatalf("expected FILE_REQUIRED, got %v", body["error_code"])
	}
}

func TestImportEnforcesUploadLimit(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Importer: &fakeImporter{}, MaxUploadBytes: 64})

	body, contentType := multipartUpload(t, "big.csv", strings.Repeat("x", 4096), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import/big", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

type fakePreviewEngine struct {
	lastRequest preview.Request
	result      preview.Result
	err         error
}

func (f *fakePreviewEngine) Preview(_ context.Context, file io.Reader, request preview.Request) (preview.Result, error) {
	_, _ = io.ReadAll(file)
	f.lastRequest = request
	if f.err != nil {
		return preview.Result{}, f.err
	}
	return f.result, nil
}

func TestImportPreview(t *testing.T) {
	engine := &fakePreviewEngine{result: preview.Result{
		Columns:  []string{"ID", "Name"},
		Rows:     [][]any{{int64(1), "Alice"}},
		Duration: 40 * time.Millisecond,
	}}
	handler := NewHandler(testConfig(t), Dependencies{Preview: engine, PreviewRowLimit: 1000})

	body, contentType := multipartUpload(t, "patients.csv", "ID,Name\n1,Alice\n", map[string]string{
		"sql":   "SELECT * FROM dataset WHERE ID = 1",
		"limit": "10",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/import/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if engine.lastRequest.Filename != "patients.csv" {
		t.Fatalf("unexpected filename %q", engine.lastRequest.Filename)
	}
	if engine.lastRequest.RowLimit != 10 {
		t.Fatalf("expected limit 10, got %d", engine.lastRequest.RowLimit)
	}
	if !strings.Contains(engine.lastRequest.SQL, "WHERE ID = 1") {
		t.Fatalf("unexpected sql %q", engine.lastRequest.SQL)
	}
	response := decodeBody(t, rec)
	columns, _ := response["columns"].([]any)
	if len(columns) != 2 {
		t.Fatalf("unexpected columns %v", response["columns"])
	}
}

func TestImportPreviewFailure(t *testing.T) {
	engine := &fakePreviewEngine{err: errors.New("syntax error near FORM")}
	handler := NewHandler(testConfig(t), Dependencies{Preview: engine})

	body, contentType := multipartUpload(t, "patients.csv", "ID\n1\n", map[string]string{"sql": "SELEC *"})
	req := httptest.NewRequest(http.MethodPost, "/v1/import/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	response := decodeBody(t, rec)
	if response["error_code"] != "PREVIEW_FAILED" {
		t.Fatalf("expected PREVIEW_FAILED, got %v", response["error_code"])
	}
}

func TestParquetImportGoesThroughPreview(t *testing.T) {
	engine := &fakePreviewEngine{result: preview.Result{
		Columns: []string{"ID", "Name"},
		Rows:    [][]any{{int64(1), "Alice"}},
	}}
	runner := &fakeImporter{result: importer.Result{ImportID: "imp-x", Table: "patients", RowsInserted: 1}}
	handler := NewHandler(testConfig(t), Dependencies{Importer: runner, Preview: engine})

	body, contentType := multipartUpload(t, "patients.parquet", "not-really-parquet", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import/patients", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if engine.lastRequest.Filename != "patients.parquet" {
		t.Fatalf("expected preview engine to read the parquet, got %q", engine.lastRequest.Filename)
	}
	got := runner.lastRequest
	if len(got.Dataset.Rows) != 1 || got.Dataset.Rows[0][1] != "Alice" {
		t.Fatalf("unexpected dataset from parquet: %+v", got.Dataset)
	}
}

type fakeReceiptLister struct {
	receipts   []importer.Receipt
	err        error
	lastSchema string
	lastTable  string
}

func (f *fakeReceiptLister) ListReceipts(_ context.Context, schemaName, tableName string) ([]importer.Receipt, error) {
	f.lastSchema = schemaName
	f.lastTable = tableName
	return f.receipts, f.err
}

func TestListImportsReturnsReceipts(t *testing.T) {
	lister := &fakeReceiptLister{receipts: []importer.Receipt{{
		ImportID: "imp-20260101T120000-abcd1234",
		Schema:   "SQLUser",
		Table:    "patients",
		Columns:  []importer.ReceiptColumn{{Name: "ID", Type: "INT"}},
		RowCount: 42,
	}}}
	handler := NewHandler(testConfig(t), Dependencies{Receipts: lister, DefaultSchema: "SQLUser"})

	req := httptest.NewRequest(http.MethodGet, "/v1/tables/patients/imports", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if lister.lastSchema != "SQLUser" || lister.lastTable != "patients" {
		t.Fatalf("lister called with %s.%s", lister.lastSchema, lister.lastTable)
	}
	response := decodeBody(t, rec)
	imports, ok := response["imports"].([]any)
	if !ok || len(imports) != 1 {
		t.Fatalf("unexpected imports payload: %v", response["imports"])
	}
	first, _ := imports[0].(map[string]any)
	if first["import_id"] != "imp-20260101T120000-abcd1234" || first["row_count"] != float64(42) {
		t.Fatalf("unexpected receipt: %v", first)
	}
}

func TestListImportsWithoutObjectStore(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/v1/tables/patients/imports", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
	response := decodeBody(t, rec)
	if response["error_code"] != "RECEIPTS_NOT_CONFIGURED" {
		t.Fatalf("expected RECEIPTS_NOT_CONFIGURED, got %v", response["error_code"])
	}
}
