package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/api"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/api/uistatic"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/auth"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/config"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/db/sqlexec"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/importer"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/nl2sql"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/observability"
	duckdbpreview "github.com/pietrodileo/iris-tool-and-data-manager/internal/preview/duckdb"
	"github.com/pietrodileo/iris-tool-and-data-manager/internal/storage"
	s3store "github.com/pietrodileo/iris-tool-and-data-manager/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("irisdm-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	database, err := sqlexec.Open(context.Background(), sqlexec.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open target database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()
	executor := sqlexec.NewExecutor(database)

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	importService := importer.NewService(executor, objectStore, logger)
	previewEngine := duckdbpreview.NewEngine()

	var translator nl2sql.Translator
	if cfg.AI.TranslateEnabled {
		translator, err = nl2sql.NewOllamaTranslator(nl2sql.OllamaConfig{
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:           logger,
		Executor:         executor,
		Importer:         importService,
		Receipts:         importService,
		Preview:          previewEngine,
		Translator:       translator,
		DefaultSchema:    cfg.Database.DefaultSchema,
		ImportSampleRows: cfg.Import.SampleLimit,
		MaxUploadBytes:   cfg.Import.MaxUploadBytes,
		ArchiveUploads:   cfg.Import.ArchiveUploads && objectStore != nil,
		PreviewRowLimit:  cfg.Preview.RowLimit,
		SchemaSampleRows: cfg.UI.SchemaSampleRows,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			api.CheckExecutor(executor),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimout: time.Second,
	}
	if cfg.UI.Enabled {
		deps.UI = uistatic.Handler()
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
