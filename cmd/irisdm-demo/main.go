package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/demo/seeder"
)

func main() {
	cfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo seeder config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := seeder.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo seeder started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("schema", cfg.Schema),
		slog.String("table", cfg.TableName),
		slog.Int("row_count", cfg.RowCount),
		slog.Int("embedding_dim", cfg.EmbeddingDim),
		slog.Bool("vector_index", cfg.VectorIndex),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo seeder stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo seeder finished")
}
