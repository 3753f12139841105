// Package observability sets up OTLP trace export.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config describes where traces go.
type Config struct {
	// AgentHost is the OTLP HTTP endpoint of the local collector,
	// host:port without a scheme.
	AgentHost string

	// ServiceName tags exported spans.
	ServiceName string
}

// Setup creates an OTLP HTTP exporter and installs a tracer provider.
// Returns a shutdown func that flushes pending spans; safe to call even
// when setup partially failed. Export failures disable tracing rather than
// failing startup.
func Setup(ctx context.Context, cfg Config) func() {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// Genkit's internal tracer reads these from the environment.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		slog.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	slog.Debug("tracing enabled", "agent", agentHost, "service", cfg.ServiceName)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}
