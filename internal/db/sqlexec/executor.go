package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

const insertBatchSize = 500

type Executor struct {
	db *sql.DB
}

func NewExecutor(database *sql.DB) *Executor {
	return &Executor{db: database}
}

func (e *Executor) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (e *Executor) TableExists(ctx context.Context, schemaName, tableName string) (bool, error) {
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	query := `
SELECT COUNT(*)
FROM INFORMATION_SCHEMA.TABLES
WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?)`

	var count int
	if err := e.db.QueryRowContext(ctx, query, schemaName, tableName).Scan(&count); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schemaName, tableName, err)
	}
	return count > 0, nil
}

// ExecuteOperations runs planned DDL in order and stops at the first
// failure. DDL is not transactional on the target engine, so the results
// returned alongside an error tell the caller how far the plan got.
func (e *Executor) ExecuteOperations(ctx context.Context, ops []schema.Operation) ([]db.OperationResult, error) {
	results := make([]db.OperationResult, 0, len(ops))
	for _, op := range ops {
		start := time.Now()
		if _, err := e.db.ExecContext(ctx, op.SQL); err != nil {
			return results, &db.OperationError{Operation: op, Err: err}
		}
		results = append(results, db.OperationResult{
			Operation: op,
			Duration:  time.Since(start).Round(time.Millisecond).String(),
		})
	}
	return results, nil
}

// InsertRows loads parsed rows in batches inside one transaction. Empty
// cells become NULL.
func (e *Executor) InsertRows(ctx context.Context, spec schema.TableSpec, rows [][]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := make([]string, len(spec.Columns))
	for i, column := range spec.Columns {
		columns[i] = column.Name
	}
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		spec.QualifiedName(), strings.Join(columns, ", "), placeholders)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("row has %d cells, table has %d columns", len(row), len(columns))
			}
			args := make([]any, len(row))
			for i, cell := range row {
				if strings.TrimSpace(cell) == "" {
					args[i] = nil
				} else {
					args[i] = cell
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return inserted, fmt.Errorf("insert row %d: %w", inserted+1, err)
			}
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert tx: %w", err)
	}
	return inserted, nil
}

// Query materializes up to limit rows of an arbitrary read statement.
func (e *Executor) Query(ctx context.Context, query string, limit int, args ...any) (db.QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return db.QueryResult{}, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return db.QueryResult{}, fmt.Errorf("read query columns: %w", err)
	}

	result := db.QueryResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if limit > 0 && len(result.Rows) >= limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return db.QueryResult{}, fmt.Errorf("scan query row: %w", err)
		}
		for i, value := range values {
			if b, ok := value.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return db.QueryResult{}, fmt.Errorf("iterate query rows: %w", err)
	}
	return result, nil
}

func (e *Executor) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
SELECT DISTINCT TABLE_SCHEMA
FROM INFORMATION_SCHEMA.TABLES
ORDER BY TABLE_SCHEMA ASC`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schemas := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return schemas, nil
}

func (e *Executor) ListTables(ctx context.Context, schemaName string) ([]db.TableInfo, error) {
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	rows, err := e.db.QueryContext(ctx, `
SELECT TABLE_SCHEMA, TABLE_NAME
FROM INFORMATION_SCHEMA.TABLES
WHERE UPPER(TABLE_SCHEMA) = UPPER(?)
ORDER BY TABLE_NAME ASC`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schemaName, err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]db.TableInfo, 0)
	for rows.Next() {
		var info db.TableInfo
		if err := rows.Scan(&info.Schema, &info.Name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func (e *Executor) DescribeTable(ctx context.Context, schemaName, tableName string) ([]db.ColumnInfo, error) {
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	rows, err := e.db.QueryContext(ctx, `
SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, ORDINAL_POSITION
FROM INFORMATION_SCHEMA.COLUMNS
WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?)
ORDER BY ORDINAL_POSITION ASC`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("describe table %s.%s: %w", schemaName, tableName, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]db.ColumnInfo, 0)
	for rows.Next() {
		var info db.ColumnInfo
		var nullable string
		if err := rows.Scan(&info.Name, &info.DataType, &nullable, &info.Position); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		info.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, db.ErrNotFound
	}
	return columns, nil
}

func (e *Executor) DropTable(ctx context.Context, schemaName, tableName string) error {
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s.%s", schemaName, tableName)); err != nil {
		return fmt.Errorf("drop table %s.%s: %w", schemaName, tableName, err)
	}
	return nil
}
