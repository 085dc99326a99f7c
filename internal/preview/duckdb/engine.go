// Package duckdb runs file previews through an in-memory DuckDB instance.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/dataset"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/preview"
)

const defaultRowLimit = 1000

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Preview stages the uploaded file in a temp dir, exposes it as a view named
// "dataset" through the reader function matching its extension, and runs the
// requested statement read-only with a row limit.
func (e *Engine) Preview(ctx context.Context, file io.Reader, request preview.Request) (preview.Result, error) {
	readerFunc, suffix, err := readerFor(request.Filename)
	if err != nil {
		return preview.Result{}, err
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "irisdm-preview-")
	if err != nil {
		return preview.Result{}, fmt.Errorf("create preview temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "upload"+suffix)
	if err := writeFile(localPath, file); err != nil {
		return preview.Result{}, fmt.Errorf("stage upload %q: %w", request.Filename, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return preview.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW dataset AS SELECT * FROM %s(%s)`,
		readerFunc, quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return preview.Result{}, fmt.Errorf("read upload %q: %w", request.Filename, err)
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		sqlText = "SELECT * FROM dataset"
	}
	limit := request.RowLimit
	if limit <= 0 {
		limit = defaultRowLimit
	}
	sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit)

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return preview.Result{}, fmt.Errorf("execute preview query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return preview.Result{}, fmt.Errorf("preview columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return preview.Result{}, fmt.Errorf("scan preview row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return preview.Result{}, fmt.Errorf("iterate preview rows: %w", err)
	}

	return preview.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func readerFor(filename string) (readerFunc, suffix string, err error) {
	switch dataset.DetectKind(filename) {
	case dataset.KindCSV:
		return "read_csv_auto", ".csv", nil
	case dataset.KindJSON:
		return "read_json_auto", ".json", nil
	case dataset.KindParquet:
		return "read_parquet", ".parquet", nil
	default:
		return "", "", fmt.Errorf("unsupported preview file %q", filename)
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
