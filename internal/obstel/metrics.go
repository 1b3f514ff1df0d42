package obstel

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Metrics holds the common instrument set. The scheduler records into
// TasksDispatched, TasksRetried and TaskDuration; nothing in this module
// records into ReviewScore or JournalWriteMicro.
type Metrics struct {
	TasksDispatched   metric.Int64Counter
	TasksRetried      metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	ReviewScore       metric.Float64Histogram
	JournalWriteMicro metric.Float64Histogram
}

// InitMetrics sets up the global OTLP metrics exporter (push model) and
// returns a shutdown function plus the common instrument set.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, m Metrics) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("service", service),
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed, metrics disabled", "error", err)
		return func(context.Context) error { return nil }, commonInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, commonInstruments()
}

func commonInstruments() Metrics {
	meter := otel.Meter("agentctl")
	dispatched, _ := meter.Int64Counter("agentctl_tasks_dispatched_total")
	retried, _ := meter.Int64Counter("agentctl_tasks_retried_total")
	duration, _ := meter.Float64Histogram("agentctl_task_duration_ms")
	review, _ := meter.Float64Histogram("agentctl_review_score")
	journal, _ := meter.Float64Histogram("agentctl_journal_write_micros")
	return Metrics{
		TasksDispatched:   dispatched,
		TasksRetried:      retried,
		TaskDuration:      duration,
		ReviewScore:       review,
		JournalWriteMicro: journal,
	}
}
