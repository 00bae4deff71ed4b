package observability

import (
	"context"
	"log/slog"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError, otellog.SeverityError},
	}
	for _, tt := range tests {
		if got := severityOf(tt.level); got != tt.want {
			t.Errorf("severityOf(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestInstrumentStdoutExporter(t *testing.T) {
	tracer, shutdown, err := Instrument(context.Background(), Config{
		ServiceName: "llmproxy-test",
		Level:       slog.LevelInfo,
		LogFormat:   LogFormatJSON,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
	slog.Info("observability smoke test")
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
