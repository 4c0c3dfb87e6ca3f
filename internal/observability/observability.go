// Package observability configures the process-wide logging pipeline. Logs go
// to stderr by default; when an OTLP endpoint is configured through the
// standard OTEL_* environment variables the slog default is bridged into an
// OpenTelemetry log provider instead.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "youtube-autopilot"

var provider *sdklog.LoggerProvider

// Instrument sets the process-wide default logger. Returns an error when the
// requested exporter cannot be constructed.
func Instrument(level slog.Level, format string) error {
	if exporterConfigured() {
		return instrumentOTLP(level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// Shutdown flushes any buffered log records. Safe to call when Instrument set
// up a plain stderr logger.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

func exporterConfigured() bool {
	return os.Getenv("OTEL_LOGS_EXPORTER") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") != ""
}

func instrumentOTLP(level slog.Level) error {
	exporter, err := newExporter(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create log exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return fmt.Errorf("failed to build resource: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)
	global.SetLoggerProvider(provider)

	slog.SetDefault(otelslog.NewLogger(serviceName,
		otelslog.WithLoggerProvider(provider)))
	return nil
}

// newExporter honors the standard exporter selection variables. The console
// exporter exists for local debugging of the pipeline itself.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	switch os.Getenv("OTEL_LOGS_EXPORTER") {
	case "console":
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	}
	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "grpc":
		return otlploggrpc.New(ctx)
	default:
		return otlploghttp.New(ctx)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
