package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
)

type columnProfile struct {
	Name          string  `json:"name"`
	DataType      string  `json:"data_type"`
	NullCount     int64   `json:"null_count"`
	DistinctCount int64   `json:"distinct_count"`
	Min           any     `json:"min,omitempty"`
	Max           any     `json:"max,omitempty"`
	Avg           float64 `json:"avg,omitempty"`
}

// handleTableProfile computes row count, per-column null and distinct counts
// and min/max/avg for numeric columns. Each column costs one aggregate query,
// so large tables pay for this endpoint in full scans.
func handleTableProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	schemaName, tableName, ok := tableTarget(deps, w, r)
	if !ok {
		return
	}

	columns, err := deps.Executor.DescribeTable(r.Context(), schemaName, tableName)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to describe table", true, map[string]any{"details": err.Error()})
		return
	}

	qualified := schemaName + "." + tableName
	rowCount, err := scalarInt(r.Context(), deps.Executor, fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to count table rows", true, map[string]any{"details": err.Error()})
		return
	}

	profiles := make([]columnProfile, 0, len(columns))
	for _, column := range columns {
		profile, err := profileColumn(r.Context(), deps.Executor, qualified, column, rowCount)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to profile column", true, map[string]any{
				"column":  column.Name,
				"details": err.Error(),
			})
			return
		}
		profiles = append(profiles, profile)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schema":     schemaName,
		"table_name": tableName,
		"row_count":  rowCount,
		"columns":    profiles,
	})
}

func profileColumn(ctx context.Context, executor db.Executor, qualified string, column db.ColumnInfo, rowCount int64) (columnProfile, error) {
	profile := columnProfile{Name: column.Name, DataType: column.DataType}

	counts, err := executor.Query(ctx, fmt.Sprintf(
		"SELECT COUNT(%[1]s), COUNT(DISTINCT %[1]s) FROM %[2]s", column.Name, qualified), 1)
	if err != nil {
		return columnProfile{}, err
	}
	if len(counts.Rows) == 1 && len(counts.Rows[0]) == 2 {
		nonNull := asInt64(counts.Rows[0][0])
		profile.NullCount = rowCount - nonNull
		profile.DistinctCount = asInt64(counts.Rows[0][1])
	}

	if !isNumericType(column.DataType) {
		return profile, nil
	}
	stats, err := executor.Query(ctx, fmt.Sprintf(
		"SELECT MIN(%[1]s), MAX(%[1]s), AVG(%[1]s) FROM %[2]s", column.Name, qualified), 1)
	if err != nil {
		return columnProfile{}, err
	}
	if len(stats.Rows) == 1 && len(stats.Rows[0]) == 3 {
		profile.Min = stats.Rows[0][0]
		profile.Max = stats.Rows[0][1]
		profile.Avg = asFloat64(stats.Rows[0][2])
	}
	return profile, nil
}

func scalarInt(ctx context.Context, executor db.Executor, query string) (int64, error) {
	result, err := executor.Query(ctx, query, 1)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) != 1 {
		return 0, fmt.Errorf("expected a single scalar from %q", query)
	}
	return asInt64(result.Rows[0][0]), nil
}

func isNumericType(dataType string) bool {
	switch {
	case strings.HasPrefix(strings.ToUpper(dataType), "INT"),
		strings.HasPrefix(strings.ToUpper(dataType), "BIGINT"),
		strings.HasPrefix(strings.ToUpper(dataType), "SMALLINT"),
		strings.HasPrefix(strings.ToUpper(dataType), "TINYINT"),
		strings.HasPrefix(strings.ToUpper(dataType), "DOUBLE"),
		strings.HasPrefix(strings.ToUpper(dataType), "FLOAT"),
		strings.HasPrefix(strings.ToUpper(dataType), "REAL"),
		strings.HasPrefix(strings.ToUpper(dataType), "NUMERIC"),
		strings.HasPrefix(strings.ToUpper(dataType), "DECIMAL"):
		return true
	}
	return false
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		var parsed int64
		_, _ = fmt.Sscan(string(v), &parsed)
		return parsed
	case string:
		var parsed int64
		_, _ = fmt.Sscan(v, &parsed)
		return parsed
	default:
		return 0
	}
}

func asFloat64(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case []byte:
		var parsed float64
		_, _ = fmt.Sscan(string(v), &parsed)
		return parsed
	case string:
		var parsed float64
		_, _ = fmt.Sscan(v, &parsed)
		return parsed
	default:
		return 0
	}
}
