// Package observability bundles structured logging, trace propagation and
// prometheus metrics for the service.
package observability

import (
	"io"
	"log/slog"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/config"
)

// NewLogger builds the service logger: JSON when the profile asks for it,
// text otherwise, tagged with the service name and profile on every record.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}
