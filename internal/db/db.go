// Package db defines the executor contract for the target database. The
// schema package plans DDL; an Executor carries it out and answers the
// metadata questions the planner and the API need.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

var ErrNotFound = errors.New("db: not found")

type Executor interface {
	HealthCheck(ctx context.Context) error
	TableExists(ctx context.Context, schemaName, tableName string) (bool, error)
	ExecuteOperations(ctx context.Context, ops []schema.Operation) ([]OperationResult, error)
	InsertRows(ctx context.Context, spec schema.TableSpec, rows [][]string) (int64, error)
	Query(ctx context.Context, query string, limit int, args ...any) (QueryResult, error)
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schemaName, tableName string) ([]ColumnInfo, error)
	DropTable(ctx context.Context, schemaName, tableName string) error
}

// OperationResult records one executed DDL operation for the import receipt.
type OperationResult struct {
	Operation schema.Operation
	Duration  string
}

// QueryResult is a bounded, fully materialized result set. Truncated reports
// whether the row limit cut the scan short.
type QueryResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type TableInfo struct {
	Schema string
	Name   string
}

type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
	Position int
}

// OperationError wraps a failure while executing planned DDL, keeping the
// statement that failed so the caller can report exactly where the plan
// stopped.
type OperationError struct {
	Operation schema.Operation
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("execute %s on %s: %v", e.Operation.Kind, e.Operation.Table, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
