package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/docchatd/internal/embeddings"

// Metrics records embedding generation telemetry.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	generationDuration metric.Float64Histogram
	batchSize          metric.Int64Histogram
	errorsTotal        metric.Int64Counter
}

// NewMetrics creates embedding metrics instruments. Instrument creation
// failures are logged and leave the corresponding metric disabled.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.generationDuration, err = m.meter.Float64Histogram(
		"docchatd.embedding.generation_duration_seconds",
		metric.WithDescription("Time to generate embeddings"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		m.logger.Warn("failed to create generation duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"docchatd.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding call"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errorsTotal, err = m.meter.Int64Counter(
		"docchatd.embedding.errors_total",
		metric.WithDescription("Total embedding generation failures"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, count int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.generationDuration != nil {
		m.generationDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(count), attrs)
	}
	if err != nil && m.errorsTotal != nil {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}
