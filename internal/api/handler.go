package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/config"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/importer"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/nl2sql"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/preview"
)

type ReadinessCheck func(ctx context.Context) error

// ImportRunner is the piece of the importer the API needs.
type ImportRunner interface {
	Run(ctx context.Context, request importer.Request) (importer.Result, error)
}

// ReceiptLister reads back the import receipts recorded for a table. Only
// set when an object store is configured.
type ReceiptLister interface {
	ListReceipts(ctx context.Context, schemaName, tableName string) ([]importer.Receipt, error)
}

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	AuthMiddleware   func(http.Handler) http.Handler
	DependencyTimout time.Duration
	Executor         db.Executor
	Importer         ImportRunner
	Receipts         ReceiptLister
	Preview          preview.Engine
	Translator       nl2sql.Translator
	DefaultSchema    string
	ImportSampleRows int
	MaxUploadBytes   int64
	ArchiveUploads   bool
	PreviewRowLimit  int
	SchemaSampleRows int
	UI               http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/schemas", func(w http.ResponseWriter, r *http.Request) {
		handleListSchemas(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables", func(w http.ResponseWriter, r *http.Request) {
		handleListTables(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables", func(w http.ResponseWriter, r *http.Request) {
		handleCreateTable(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		handleGetTable(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/rows", func(w http.ResponseWriter, r *http.Request) {
		handleTableRows(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/profile", func(w http.ResponseWriter, r *http.Request) {
		handleTableProfile(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/imports", func(w http.ResponseWriter, r *http.Request) {
		handleListImports(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/{table}/columns", func(w http.ResponseWriter, r *http.Request) {
		handleAddColumns(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteTable(deps, w, r)
	})

	protected.HandleFunc("POST /v1/import/preview", func(w http.ResponseWriter, r *http.Request) {
		handleImportPreview(deps, w, r)
	})
	protected.HandleFunc("POST /v1/import/{table}", func(w http.ResponseWriter, r *http.Request) {
		handleImport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslateQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/ui/schema", func(w http.ResponseWriter, r *http.Request) {
		handleUISchema(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/schemas", protectedHandler)
	mux.Handle("GET /v1/tables", protectedHandler)
	mux.Handle("POST /v1/tables", protectedHandler)
	mux.Handle("GET /v1/tables/{table}", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/rows", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/profile", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/imports", protectedHandler)
	mux.Handle("POST /v1/tables/{table}/columns", protectedHandler)
	mux.Handle("DELETE /v1/tables/{table}", protectedHandler)
	mux.Handle("POST /v1/import/preview", protectedHandler)
	mux.Handle("POST /v1/import/{table}", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/query/translate", protectedHandler)
	mux.Handle("GET /v1/ui/schema", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.DSN == "" {
			return errors.New("database dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CheckExecutor(executor db.Executor) ReadinessCheck {
	return func(ctx context.Context) error {
		if executor == nil {
			return errors.New("database executor is not configured")
		}
		return executor.HealthCheck(ctx)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
