package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/nl2sql"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

type translateRequest struct {
	Question string   `json:"question"`
	Schema   string   `json:"schema"`
	Tables   []string `json:"tables"`
}

func handleTranslateQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	schemaName := strings.TrimSpace(req.Schema)
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

	tableContexts, err := buildTableContexts(r.Context(), deps, schemaName, req.Tables)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}

	start := time.Now()
	result, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		Question: req.Question,
		Tables:   tableContexts,
	})
	if err != nil {
		observability.ObserveTranslate(time.Since(start), true)
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate query", true, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveTranslate(time.Since(start), false)

	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	})
}

func handleUISchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	schemaName, err := schemaFromRequest(deps, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SCHEMA", err.Error(), false, nil)
		return
	}

	tableContexts, err := buildTableContexts(r.Context(), deps, schemaName, nil)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema": schemaName,
		"tables": tableContexts,
	})
}

// buildTableContexts collects column lists and a few sample rows for the
// translator's grounding prompt. Sample row failures are tolerated; a table
// with columns but no samples still helps the model.
func buildTableContexts(ctx context.Context, deps Dependencies, schemaName string, only []string) ([]nl2sql.TableContext, error) {
	var names []string
	if len(only) > 0 {
		for _, name := range only {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				continue
			}
			if !identifierPattern.MatchString(trimmed) {
				return nil, fmt.Errorf("table %q is not a valid SQL identifier", trimmed)
			}
			names = append(names, trimmed)
		}
	} else {
		tables, err := deps.Executor.ListTables(ctx, schemaName)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		for _, table := range tables {
			names = append(names, table.Name)
		}
	}

	sampleRows := deps.SchemaSampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}

	contexts := make([]nl2sql.TableContext, 0, len(names))
	for _, name := range names {
		tableContext := nl2sql.TableContext{Schema: schemaName, TableName: name}
		columns, err := deps.Executor.DescribeTable(ctx, schemaName, name)
		if err != nil {
			return nil, fmt.Errorf("describe %s.%s: %w", schemaName, name, err)
		}
		for _, column := range columns {
			tableContext.Columns = append(tableContext.Columns, column.Name+" "+column.DataType)
		}
		result, err := deps.Executor.Query(ctx, fmt.Sprintf("SELECT * FROM %s.%s", schemaName, name), sampleRows)
		if err == nil {
			tableContext.SampleRows = result.Rows
		}
		contexts = append(contexts, tableContext)
	}
	return contexts, nil
}
