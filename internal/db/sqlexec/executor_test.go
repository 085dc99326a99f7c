package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestTableExists(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT COUNT(*)
FROM INFORMATION_SCHEMA.TABLES
WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?)`)).
		WithArgs("SQLUser", "patients").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := exec.TableExists(context.Background(), "", "patients")
	if err != nil {
		t.Fatalf("TableExists() error = %v", err)
	}
	if !exists {
		t.Fatal("exists = false, want true")
	}
	assertSQLMock(t, mock)
}

func TestExecuteOperationsRunsInOrder(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	ops := []schema.Operation{
		{Kind: schema.OpDropTable, SQL: "DROP TABLE SQLUser.patients", Table: "SQLUser.patients"},
		{Kind: schema.OpCreateTable, SQL: "CREATE TABLE SQLUser.patients (ID INT)", Table: "SQLUser.patients"},
		{Kind: schema.OpCreateIndex, SQL: "CREATE INDEX patients_ID_index ON SQLUser.patients (ID)", Table: "SQLUser.patients", Index: "patients_ID_index"},
	}
	for _, op := range ops {
		mock.ExpectExec(regexp.QuoteMeta(op.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	results, err := exec.ExecuteOperations(context.Background(), ops)
	if err != nil {
		t.Fatalf("ExecuteOperations() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("result count = %d, want 3", len(results))
	}
	assertSQLMock(t, mock)
}

func TestExecuteOperationsStopsAtFirstFailure(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	ops := []schema.Operation{
		{Kind: schema.OpCreateTable, SQL: "CREATE TABLE SQLUser.t (ID INT)", Table: "SQLUser.t"},
		{Kind: schema.OpCreateIndex, SQL: "CREATE INDEX t_ID_index ON SQLUser.t (ID)", Table: "SQLUser.t", Index: "t_ID_index"},
	}
	mock.ExpectExec(regexp.QuoteMeta(ops[0].SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(ops[1].SQL)).WillReturnError(errors.New("index failed"))

	results, err := exec.ExecuteOperations(context.Background(), ops)
	if err == nil {
		t.Fatal("expected execution error")
	}
	var opErr *db.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %T, want *db.OperationError", err)
	}
	if opErr.Operation.Index != "t_ID_index" {
		t.Fatalf("failed op index = %q", opErr.Operation.Index)
	}
	if len(results) != 1 {
		t.Fatalf("completed count = %d, want 1", len(results))
	}
	assertSQLMock(t, mock)
}

func TestInsertRowsBatchesAndNulls(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	spec := schema.TableSpec{
		Name: "patients",
		Columns: []schema.ColumnDescriptor{
			{Name: "ID", Type: schema.ColumnType{Kind: schema.TypeInteger}},
			{Name: "Name", Type: schema.Varchar(16)},
		},
	}
	insertSQL := "INSERT INTO SQLUser.patients (ID, Name) VALUES (?, ?)"

	mock.ExpectBegin()
	prepared := mock.ExpectPrepare(regexp.QuoteMeta(insertSQL))
	prepared.ExpectExec().WithArgs("1", "Alice").WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WithArgs("2", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := exec.InsertRows(context.Background(), spec, [][]string{
		{"1", "Alice"},
		{"2", ""},
	})
	if err != nil {
		t.Fatalf("InsertRows() error = %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}
	assertSQLMock(t, mock)
}

func TestInsertRowsRejectsRaggedRow(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	spec := schema.TableSpec{
		Name:    "patients",
		Columns: []schema.ColumnDescriptor{{Name: "ID", Type: schema.ColumnType{Kind: schema.TypeInteger}}},
	}
	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO SQLUser.patients (ID) VALUES (?)"))
	mock.ExpectRollback()

	_, err := exec.InsertRows(context.Background(), spec, [][]string{{"1", "extra"}})
	if err == nil {
		t.Fatal("expected error for ragged row")
	}
	assertSQLMock(t, mock)
}

func TestQueryAppliesRowLimit(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	rows := sqlmock.NewRows([]string{"ID", "Name"}).
		AddRow(int64(1), "Alice").
		AddRow(int64(2), "Bob").
		AddRow(int64(3), "Charlie")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ID, Name FROM SQLUser.patients")).WillReturnRows(rows)

	result, err := exec.Query(context.Background(), "SELECT ID, Name FROM SQLUser.patients", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(result.Rows))
	}
	if !result.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if result.Columns[1] != "Name" {
		t.Fatalf("columns = %v", result.Columns)
	}
}

func TestQueryBindsPositionalParameters(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	rows := sqlmock.NewRows([]string{"ID", "Name"}).AddRow(int64(2), "Bob")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ID, Name FROM SQLUser.patients WHERE Ward = ? AND Age > ?")).
		WithArgs("ICU", int64(40)).
		WillReturnRows(rows)

	result, err := exec.Query(context.Background(),
		"SELECT ID, Name FROM SQLUser.patients WHERE Ward = ? AND Age > ?", 10, "ICU", int64(40))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(result.Rows))
	}
	if result.Rows[0][1] != "Bob" {
		t.Fatalf("rows = %v", result.Rows)
	}
	assertSQLMock(t, mock)
}

func TestDescribeTableMissingReturnsNotFound(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("SQLUser", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "ORDINAL_POSITION"}))

	_, err := exec.DescribeTable(context.Background(), "", "missing")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("err = %v, want db.ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestListTables(t *testing.T) {
	database, mock := newSQLMock(t)
	exec := NewExecutor(database)

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WithArgs("Hospital").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}).
			AddRow("Hospital", "admissions").
			AddRow("Hospital", "patients"))

	tables, err := exec.ListTables(context.Background(), "Hospital")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 || tables[1].Name != "patients" {
		t.Fatalf("tables = %+v", tables)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
