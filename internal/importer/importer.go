// Package importer drives one file import end to end: infer the table shape
// from the parsed upload, reconcile it with the caller's intent, run the
// planned DDL, and bulk-load the rows.
package importer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/dataset"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/storage"
)

const defaultSampleLimit = 1000

// Archive carries the raw upload for archival beside the import.
type Archive struct {
	Filename string
	Content  []byte
}

// Request describes one import. PrimaryKey and Required name columns by
// their sanitized names; Indexes are validated against the inferred columns.
type Request struct {
	Schema      string
	Table       string
	Dataset     dataset.Dataset
	PrimaryKey  []string
	Required    []string
	Indexes     []schema.IndexSpec
	Existence   schema.ExistencePolicy
	SampleLimit int
	Archive     *Archive
}

// Result reports what one import did. UploadKey and ReceiptKey are empty
// when no object store is configured.
type Result struct {
	ImportID     string
	Table        string
	Columns      []schema.ColumnDescriptor
	Operations   []db.OperationResult
	RowsInserted int64
	Duration     time.Duration
	UploadKey    string
	ReceiptKey   string
}

type Service struct {
	executor db.Executor
	store    storage.ObjectStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(executor db.Executor, store storage.ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		executor: executor,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs the import. DDL execution is not transactional: an operation
// failure aborts immediately and the error reports how far the plan got.
func (s *Service) Run(ctx context.Context, request Request) (Result, error) {
	start := s.now()
	result := Result{ImportID: newImportID(start)}

	tableName := schema.SanitizeName(request.Table)
	if tableName == "" {
		observability.ObserveImport(0, 0, true)
		return result, fmt.Errorf("table name is required")
	}

	sampleLimit := request.SampleLimit
	if sampleLimit <= 0 {
		sampleLimit = defaultSampleLimit
	}
	columns := schema.Infer(request.Dataset.SampleColumns(sampleLimit))
	applyRequired(columns, append(request.Required, request.PrimaryKey...))

	spec := schema.TableSpec{
		Schema:    request.Schema,
		Name:      tableName,
		Columns:   columns,
		Existence: request.Existence,
	}
	if len(request.PrimaryKey) > 0 {
		spec.PrimaryKeys = [][]string{request.PrimaryKey}
	}
	result.Table = spec.QualifiedName()
	result.Columns = columns

	exists, err := s.executor.TableExists(ctx, spec.Schema, spec.Name)
	if err != nil {
		observability.ObserveImport(0, 0, true)
		return result, err
	}

	// Skip policy on an existing table leaves it untouched: no DDL, no rows.
	if exists && request.Existence == schema.SkipIfExists {
		result.Duration = s.now().Sub(start)
		observability.ObserveImport(0, result.Duration, false)
		s.logger.InfoContext(ctx, "import_skipped_existing_table",
			slog.String("import_id", result.ImportID),
			slog.String("table", result.Table),
		)
		return result, nil
	}

	ops, err := schema.Emit(spec, request.Indexes, exists)
	if err != nil {
		observability.ObserveImport(0, 0, true)
		return result, err
	}

	executed, err := s.executor.ExecuteOperations(ctx, ops)
	result.Operations = executed
	if err != nil {
		observability.ObserveImport(0, 0, true)
		return result, err
	}
	for _, op := range executed {
		observability.ObserveDDLOperation(op.Operation.Kind.String())
	}

	inserted, err := s.executor.InsertRows(ctx, spec, request.Dataset.Rows)
	result.RowsInserted = inserted
	if err != nil {
		observability.ObserveImport(0, 0, true)
		return result, err
	}

	result.Duration = s.now().Sub(start)
	s.archive(ctx, request, &result, start)
	observability.ObserveImport(inserted, result.Duration, false)

	s.logger.InfoContext(ctx, "import_completed",
		slog.String("import_id", result.ImportID),
		slog.String("table", result.Table),
		slog.Int64("rows", inserted),
		slog.Int("operations", len(executed)),
		slog.String("duration", result.Duration.String()),
	)
	return result, nil
}

// archive stores the raw upload and the parquet receipt. Both are best
// effort: the rows are already in the table, so failures here log a warning
// instead of failing the import.
func (s *Service) archive(ctx context.Context, request Request, result *Result, start time.Time) {
	if s.store == nil {
		return
	}
	schemaName := strings.TrimSpace(request.Schema)
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	tableName := schema.SanitizeName(request.Table)

	if request.Archive != nil {
		key, err := storage.BuildUploadPath(schemaName, tableName, request.Archive.Filename, start)
		if err == nil {
			_, err = s.store.Put(ctx, key, bytes.NewReader(request.Archive.Content),
				int64(len(request.Archive.Content)), storage.PutOptions{ContentType: "application/octet-stream"})
		}
		if err != nil {
			s.logger.WarnContext(ctx, "upload_archive_failed",
				slog.String("import_id", result.ImportID), slog.Any("error", err))
		} else {
			result.UploadKey = key
		}
	}

	receipt, err := EncodeReceipt(*result, schemaName, tableName, start)
	if err != nil {
		s.logger.WarnContext(ctx, "receipt_encode_failed",
			slog.String("import_id", result.ImportID), slog.Any("error", err))
		return
	}
	key, err := storage.BuildReceiptPath(schemaName, tableName, result.ImportID)
	if err == nil {
		_, err = s.store.Put(ctx, key, bytes.NewReader(receipt), int64(len(receipt)),
			storage.PutOptions{ContentType: "application/octet-stream"})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "receipt_write_failed",
			slog.String("import_id", result.ImportID), slog.Any("error", err))
		return
	}
	result.ReceiptKey = key
}

// ErrNoObjectStore is returned by ListReceipts when no store is configured.
var ErrNoObjectStore = errors.New("no object store configured")

// ListReceipts fetches and decodes every receipt recorded for one table,
// newest first.
func (s *Service) ListReceipts(ctx context.Context, schemaName, tableName string) ([]Receipt, error) {
	if s.store == nil {
		return nil, ErrNoObjectStore
	}
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		schemaName = schema.DefaultSchema
	}
	prefix, err := storage.BuildReceiptPrefix(schemaName, schema.SanitizeName(tableName))
	if err != nil {
		return nil, err
	}
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	receipts := make([]Receipt, 0, len(objects))
	for _, object := range objects {
		body, err := s.store.Get(ctx, object.Key)
		if err != nil {
			return nil, fmt.Errorf("fetch receipt %q: %w", object.Key, err)
		}
		data, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			return nil, fmt.Errorf("read receipt %q: %w", object.Key, err)
		}
		receipt, err := DecodeReceipt(data)
		if err != nil {
			return nil, fmt.Errorf("decode receipt %q: %w", object.Key, err)
		}
		receipts = append(receipts, receipt)
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].ImportedAt.After(receipts[j].ImportedAt)
	})
	return receipts, nil
}

func applyRequired(columns []schema.ColumnDescriptor, required []string) {
	if len(required) == 0 {
		return
	}
	names := make(map[string]struct{}, len(required))
	for _, name := range required {
		names[strings.ToLower(schema.SanitizeName(name))] = struct{}{}
	}
	for i := range columns {
		if _, ok := names[strings.ToLower(columns[i].Name)]; ok {
			columns[i].Nullable = false
		}
	}
}

func newImportID(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("imp-%d", now.UnixNano())
	}
	return fmt.Sprintf("imp-%s-%s", now.UTC().Format("20060102T150405"), hex.EncodeToString(buf))
}
