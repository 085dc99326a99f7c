package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	Params   []any  `json:"params"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !isAllowedSQL(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}

	rowLimit := deps.PreviewRowLimit
	if rowLimit <= 0 {
		rowLimit = 1000
	}
	if request.RowLimit > 0 && request.RowLimit < rowLimit {
		rowLimit = request.RowLimit
	}

	start := time.Now()
	result, err := deps.Executor.Query(r.Context(), request.SQL, rowLimit, request.Params...)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	elapsed := time.Since(start)
	observability.ObserveQuery(elapsed)

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"row_count":   len(result.Rows),
		},
	})
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	if strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with") {
		return true
	}
	return false
}
