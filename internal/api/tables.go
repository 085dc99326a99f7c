package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type columnDefinition struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable"`
}

type indexDefinition struct {
	Column      string `json:"column"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Metric      string `json:"metric"`
	M           int    `json:"m"`
	EfConstruct int    `json:"ef_construct"`
}

type tableCreateRequest struct {
	Schema     string             `json:"schema"`
	TableName  string             `json:"table_name"`
	Columns    []columnDefinition `json:"columns"`
	PrimaryKey []string           `json:"primary_key"`
	Indexes    []indexDefinition  `json:"indexes"`
	Existence  string             `json:"existence"`
}

func handleListSchemas(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	schemas, err := deps.Executor.ListSchemas(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list schemas", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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
	tables, err := deps.Executor.ListTables(r.Context(), schemaName)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(tables))
	for _, table := range tables {
		items = append(items, map[string]any{
			"schema":     table.Schema,
			"table_name": table.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema": schemaName,
		"tables": items,
	})
}

func handleCreateTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req tableCreateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid create table request body", false, map[string]any{"details": err.Error()})
		return
	}
	tableName := schema.SanitizeName(req.TableName)
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_NAME_REQUIRED", "table_name is required", false, nil)
		return
	}
	if !identifierPattern.MatchString(tableName) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE_NAME", "table_name must be a valid SQL identifier", false, map[string]any{"table_name": tableName})
		return
	}
	if len(req.Columns) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "COLUMNS_REQUIRED", "at least one column is required", false, nil)
		return
	}

	schemaName := strings.TrimSpace(req.Schema)
	if schemaName == "" {
		schemaName = deps.DefaultSchema
	}

	columns := make([]schema.ColumnDescriptor, 0, len(req.Columns))
	for i, col := range req.Columns {
		name := schema.SanitizeName(col.Name)
		if name == "" || !identifierPattern.MatchString(name) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COLUMN_NAME", "column name must be a valid SQL identifier", false, map[string]any{"column_index": i})
			return
		}
		columnType, err := schema.ParseColumnType(col.Type)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COLUMN_TYPE", err.Error(), false, map[string]any{"column_index": i})
			return
		}
		nullable := true
		if col.Nullable != nil {
			nullable = *col.Nullable
		}
		columns = append(columns, schema.ColumnDescriptor{Name: name, Type: columnType, Nullable: nullable})
	}

	indexes, err := parseIndexDefinitions(req.Indexes)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INDEX", err.Error(), false, nil)
		return
	}
	existence, err := schema.ParseExistencePolicy(req.Existence)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXISTENCE_POLICY", err.Error(), false, nil)
		return
	}

	spec := schema.TableSpec{
		Schema:    schemaName,
		Name:      tableName,
		Columns:   columns,
		Existence: existence,
	}
	if len(req.PrimaryKey) > 0 {
		spec.PrimaryKeys = [][]string{req.PrimaryKey}
	}

	exists, err := deps.Executor.TableExists(r.Context(), schemaName, tableName)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to check table existence", true, map[string]any{"details": err.Error()})
		return
	}

	ops, err := schema.Emit(spec, indexes, exists)
	if err != nil {
		status := http.StatusBadRequest
		code := "INVALID_TABLE_SPEC"
		if errors.Is(err, schema.ErrTableExists) {
			status = http.StatusConflict
			code = "TABLE_EXISTS"
		}
		writeError(r.Context(), w, status, code, err.Error(), false, nil)
		return
	}
	if len(ops) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "skipped",
			"schema":     schemaName,
			"table_name": tableName,
		})
		return
	}

	results, err := deps.Executor.ExecuteOperations(r.Context(), ops)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DDL_EXECUTION_FAILED", "failed to execute table operations", true, map[string]any{
			"details":    err.Error(),
			"operations": operationItems(results),
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":     "created",
		"schema":     schemaName,
		"table_name": tableName,
		"operations": operationItems(results),
	})
}

type addColumnsRequest struct {
	Columns []columnDefinition `json:"columns"`
}

// handleAddColumns extends an existing table with new columns. Columns the
// table already has are skipped, so resubmitting a request is harmless.
func handleAddColumns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	schemaName, tableName, ok := tableTarget(deps, w, r)
	if !ok {
		return
	}

	var req addColumnsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid add columns request body", false, map[string]any{"details": err.Error()})
		return
	}
	if len(req.Columns) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "COLUMNS_REQUIRED", "at least one column is required", false, nil)
		return
	}

	columns := make([]schema.ColumnDescriptor, 0, len(req.Columns))
	for i, col := range req.Columns {
		name := schema.SanitizeName(col.Name)
		if name == "" || !identifierPattern.MatchString(name) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COLUMN_NAME", "column name must be a valid SQL identifier", false, map[string]any{"column_index": i})
			return
		}
		columnType, err := schema.ParseColumnType(col.Type)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COLUMN_TYPE", err.Error(), false, map[string]any{"column_index": i})
			return
		}
		columns = append(columns, schema.ColumnDescriptor{Name: name, Type: columnType, Nullable: true})
	}

	current, err := deps.Executor.DescribeTable(r.Context(), schemaName, tableName)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to describe table", true, map[string]any{"details": err.Error()})
		return
	}
	existing := make([]string, 0, len(current))
	for _, column := range current {
		existing = append(existing, column.Name)
	}

	spec := schema.TableSpec{Schema: schemaName, Name: tableName, Columns: columns}
	ops, err := schema.EmitAddColumns(spec, existing)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE_SPEC", err.Error(), false, nil)
		return
	}
	if len(ops) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "unchanged",
			"schema":     schemaName,
			"table_name": tableName,
		})
		return
	}

	results, err := deps.Executor.ExecuteOperations(r.Context(), ops)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DDL_EXECUTION_FAILED", "failed to execute table operations", true, map[string]any{
			"details":    err.Error(),
			"operations": operationItems(results),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "altered",
		"schema":     schemaName,
		"table_name": tableName,
		"operations": operationItems(results),
	})
}

func handleGetTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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
	items := make([]map[string]any, 0, len(columns))
	for _, column := range columns {
		items = append(items, map[string]any{
			"name":      column.Name,
			"data_type": column.DataType,
			"nullable":  column.Nullable,
			"position":  column.Position,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":     schemaName,
		"table_name": tableName,
		"columns":    items,
	})
}

func handleTableRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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
	limit := deps.PreviewRowLimit
	if limit <= 0 {
		limit = 100
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	result, err := deps.Executor.Query(r.Context(), fmt.Sprintf("SELECT * FROM %s.%s", schemaName, tableName), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to read table rows", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":     schemaName,
		"table_name": tableName,
		"columns":    result.Columns,
		"rows":       result.Rows,
		"truncated":  result.Truncated,
	})
}

func handleDeleteTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleTableAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	schemaName, tableName, ok := tableTarget(deps, w, r)
	if !ok {
		return
	}
	exists, err := deps.Executor.TableExists(r.Context(), schemaName, tableName)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to check table existence", true, map[string]any{"details": err.Error()})
		return
	}
	if !exists {
		writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, nil)
		return
	}
	if err := deps.Executor.DropTable(r.Context(), schemaName, tableName); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to drop table", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "deleted",
		"schema":     schemaName,
		"table_name": tableName,
	})
}

func parseIndexDefinitions(defs []indexDefinition) ([]schema.IndexSpec, error) {
	indexes := make([]schema.IndexSpec, 0, len(defs))
	for i, def := range defs {
		kind, err := schema.ParseIndexKind(def.Kind)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		metric, err := schema.ParseDistanceMetric(def.Metric)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		indexes = append(indexes, schema.IndexSpec{
			Column:      schema.SanitizeName(def.Column),
			Kind:        kind,
			Name:        strings.TrimSpace(def.Name),
			Metric:      metric,
			M:           def.M,
			EfConstruct: def.EfConstruct,
		})
	}
	return indexes, nil
}

func operationItems(results []db.OperationResult) []map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"kind":     result.Operation.Kind.String(),
			"sql":      result.Operation.SQL,
			"duration": result.Duration,
		})
	}
	return items
}

// tableTarget resolves and validates the schema/table pair addressed by the
// request, writing the error response itself when the pair is unusable.
func tableTarget(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, string, bool) {
	schemaName, err := schemaFromRequest(deps, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SCHEMA", err.Error(), false, nil)
		return "", "", false
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return "", "", false
	}
	if !identifierPattern.MatchString(tableName) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE_NAME", "table must be a valid SQL identifier", false, map[string]any{"table": tableName})
		return "", "", false
	}
	return schemaName, tableName, true
}

func schemaFromRequest(deps Dependencies, r *http.Request) (string, error) {
	schemaName := strings.TrimSpace(r.URL.Query().Get("schema"))
	if schemaName == "" {
		schemaName = deps.DefaultSchema
	}
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	if !identifierPattern.MatchString(schemaName) {
		return "", fmt.Errorf("schema %q is not a valid SQL identifier", schemaName)
	}
	return schemaName, nil
}

func requireAnyRole(r *http.Request, roles ...string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	for _, role := range roles {
		if identity.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("missing required role, expected one of %q", strings.Join(roles, ","))
}
