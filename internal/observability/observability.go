// Package observability wires structured logging and distributed tracing:
// log/slog bridged onto an OpenTelemetry log pipeline (severity-filtered,
// exported to stdout or an OTLP collector), plus the tracer used to wrap
// the proxy dispatcher and streaming pipeline in spans.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

// LogFormat selects the stdout log exporter's rendering; it has no effect
// when OTLP export is configured (the collector renders logs itself).
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config controls Instrument. ServiceName tags every emitted log record and
// span. OTLPEndpoint, when set, routes logs to a collector instead of
// stdout; OTLPInsecure disables TLS for that connection (loopback/sidecar
// collectors). Level is the minimum severity that reaches any exporter.
type Config struct {
	ServiceName  string
	Level        slog.Level
	LogFormat    LogFormat
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPProtocol string // "grpc" (default) or "http"
}

// Shutdown flushes and closes every exporter Instrument opened. Call it
// during application shutdown, after the last log/span has been emitted.
type Shutdown func(ctx context.Context) error

// Instrument sets slog's default logger to one bridged onto an OpenTelemetry
// log pipeline, and returns the Tracer the proxy dispatcher and streaming
// pipeline use to emit spans, plus a Shutdown that flushes and closes the log
// pipeline on exit.
func Instrument(ctx context.Context, cfg Config) (trace.Tracer, Shutdown, error) {
	exporter, err := newLogExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build log exporter: %w", err)
	}

	sevVar := minsev.NewSeverityVar(severityOf(cfg.Level))
	filtered := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), sevVar)

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(filtered),
	)

	handler := otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(handler))

	tracer := otel.Tracer(cfg.ServiceName)

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}

	return tracer, shutdown, nil
}

func severityOf(level slog.Level) otellog.Severity {
	switch {
	case level <= slog.LevelDebug:
		return otellog.SeverityDebug
	case level <= slog.LevelInfo:
		return otellog.SeverityInfo
	case level <= slog.LevelWarn:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityError
	}
}

func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	if cfg.OTLPEndpoint == "" {
		opts := []stdoutlog.Option{}
		if cfg.LogFormat != LogFormatJSON {
			opts = append(opts, stdoutlog.WithPrettyPrint())
		}
		return stdoutlog.New(opts...)
	}

	if cfg.OTLPProtocol == "http" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return otlploggrpc.New(ctx, opts...)
}
