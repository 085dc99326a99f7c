package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/dataset"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/importer"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/preview"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

const defaultMaxUploadBytes = 64 << 20

type importResponse struct {
	ImportID     string           `json:"import_id"`
	Schema       string           `json:"schema"`
	TableName    string           `json:"table_name"`
	Columns      []map[string]any `json:"columns"`
	Operations   []map[string]any `json:"operations"`
	RowsInserted int64            `json:"rows_inserted"`
	DurationMs   int64            `json:"duration_ms"`
	UploadKey    string           `json:"upload_key,omitempty"`
	ReceiptKey   string           `json:"receipt_key,omitempty"`
}

func handleImport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Importer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "IMPORT_NOT_CONFIGURED", "import dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleImporter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	filename, content, ok := readUpload(deps, w, r)
	if !ok {
		return
	}

	schemaName := strings.TrimSpace(r.FormValue("schema"))
	if schemaName == "" {
		schemaName = deps.DefaultSchema
	}
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	if !identifierPattern.MatchString(schemaName) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SCHEMA", "schema must be a valid SQL identifier", false, map[string]any{"schema": schemaName})
		return
	}

	existence, err := schema.ParseExistencePolicy(r.FormValue("existence"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXISTENCE_POLICY", err.Error(), false, nil)
		return
	}
	var indexDefs []indexDefinition
	if raw := strings.TrimSpace(r.FormValue("indexes")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &indexDefs); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INDEX", "indexes must be a JSON array", false, map[string]any{"details": err.Error()})
			return
		}
	}
	indexes, err := parseIndexDefinitions(indexDefs)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INDEX", err.Error(), false, nil)
		return
	}

	sampleLimit := deps.ImportSampleRows
	if raw := strings.TrimSpace(r.FormValue("sample_limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SAMPLE_LIMIT", "sample_limit must be a positive integer", false, nil)
			return
		}
		sampleLimit = parsed
	}

	data, err := datasetFromUpload(r.Context(), deps, filename, content)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATASET", err.Error(), false, map[string]any{"filename": filename})
		return
	}

	request := importer.Request{
		Schema:      schemaName,
		Table:       tableName,
		Dataset:     data,
		PrimaryKey:  splitCommaList(r.FormValue("primary_key")),
		Required:    splitCommaList(r.FormValue("required")),
		Indexes:     indexes,
		Existence:   existence,
		SampleLimit: sampleLimit,
	}
	if deps.ArchiveUploads {
		request.Archive = &importer.Archive{Filename: filename, Content: content}
	}
	result, err := deps.Importer.Run(r.Context(), request)
	if err != nil {
		writeImportError(w, r, err)
		return
	}

	columns := make([]map[string]any, 0, len(result.Columns))
	for _, column := range result.Columns {
		columns = append(columns, map[string]any{
			"name":     column.Name,
			"type":     column.Type.SQL(),
			"nullable": column.Nullable,
		})
	}
	writeJSON(w, http.StatusCreated, importResponse{
		ImportID:     result.ImportID,
		Schema:       schemaName,
		TableName:    result.Table,
		Columns:      columns,
		Operations:   operationItems(result.Operations),
		RowsInserted: result.RowsInserted,
		DurationMs:   result.Duration.Milliseconds(),
		UploadKey:    result.UploadKey,
		ReceiptKey:   result.ReceiptKey,
	})
}

// handleListImports returns the decoded receipts recorded for one table,
// newest first. Requires an object store.
func handleListImports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleImporter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if deps.Receipts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RECEIPTS_NOT_CONFIGURED", "import receipts require an object store", false, nil)
		return
	}
	schemaName, tableName, ok := tableTarget(deps, w, r)
	if !ok {
		return
	}

	receipts, err := deps.Receipts.ListReceipts(r.Context(), schemaName, tableName)
	if err != nil {
		if errors.Is(err, importer.ErrNoObjectStore) {
			writeError(r.Context(), w, http.StatusNotImplemented, "RECEIPTS_NOT_CONFIGURED", "import receipts require an object store", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "RECEIPT_LIST_FAILED", "failed to list import receipts", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":  schemaName,
		"table":   tableName,
		"imports": receipts,
	})
}

func handleImportPreview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Preview == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PREVIEW_NOT_CONFIGURED", "preview engine is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleImporter, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	filename, content, ok := readUpload(deps, w, r)
	if !ok {
		return
	}

	rowLimit := deps.PreviewRowLimit
	if raw := strings.TrimSpace(r.FormValue("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		if deps.PreviewRowLimit <= 0 || parsed < deps.PreviewRowLimit {
			rowLimit = parsed
		}
	}

	start := time.Now()
	result, err := deps.Preview.Preview(r.Context(), bytes.NewReader(content), preview.Request{
		Filename: filename,
		SQL:      r.FormValue("sql"),
		RowLimit: rowLimit,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "PREVIEW_FAILED", "preview execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	observability.ObservePreview(time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filename,
		"columns":  result.Columns,
		"rows":     result.Rows,
		"stats": map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_count":   len(result.Rows),
		},
	})
}

// readUpload pulls the "file" part out of a bounded multipart body. It writes
// the error response itself when the upload is unusable.
func readUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	maxBytes := deps.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		status := http.StatusBadRequest
		code := "INVALID_MULTIPART"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
			code = "UPLOAD_TOO_LARGE"
		}
		writeError(r.Context(), w, status, code, "failed to read multipart upload", false, map[string]any{"details": err.Error()})
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
		return "", nil, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_READ_FAILED", "failed to read uploaded file", false, map[string]any{"details": err.Error()})
		return "", nil, false
	}
	if len(content) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_UPLOAD", "uploaded file is empty", false, nil)
		return "", nil, false
	}
	return header.Filename, content, true
}

// datasetFromUpload materializes the upload as string cells. Parquet goes
// through the preview engine since the dataset package does not read it.
func datasetFromUpload(ctx context.Context, deps Dependencies, filename string, content []byte) (dataset.Dataset, error) {
	if dataset.DetectKind(filename) == dataset.KindParquet {
		if deps.Preview == nil {
			return dataset.Dataset{}, fmt.Errorf("parquet import requires the preview engine")
		}
		result, err := deps.Preview.Preview(ctx, bytes.NewReader(content), preview.Request{Filename: filename})
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("read parquet upload: %w", err)
		}
		return preview.ToDataset(result), nil
	}
	return dataset.Parse(filename, bytes.NewReader(content))
}

func writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schema.ErrTableExists):
		writeError(r.Context(), w, http.StatusConflict, "TABLE_EXISTS", err.Error(), false, nil)
	case errors.Is(err, schema.ErrSchema):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE_SPEC", err.Error(), false, nil)
	default:
		var opErr *db.OperationError
		if errors.As(err, &opErr) {
			writeError(r.Context(), w, http.StatusInternalServerError, "DDL_EXECUTION_FAILED", err.Error(), true, map[string]any{
				"failed_sql": opErr.Operation.SQL,
			})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "IMPORT_FAILED", err.Error(), true, nil)
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
