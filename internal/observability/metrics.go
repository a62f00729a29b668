package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OperationMetrics holds custom metrics for schema operations. It satisfies
// the runtime's Metrics interface.
type OperationMetrics struct {
	duration          metric.Float64Histogram
	operations        metric.Int64Counter
	errors            metric.Int64Counter
	resultRows        metric.Int64Histogram
	subscriptionDrops metric.Int64Counter
}

// InitOperationMetrics initializes operation-level metrics.
func InitOperationMetrics() (*OperationMetrics, error) {
	meter := otel.Meter("viewql")

	duration, err := meter.Float64Histogram(
		"viewql.operation.duration",
		metric.WithDescription("Duration of operation executions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	operations, err := meter.Int64Counter(
		"viewql.operations.total",
		metric.WithDescription("Total number of operation executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	errCounter, err := meter.Int64Counter(
		"viewql.errors.total",
		metric.WithDescription("Total number of failed operation executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"viewql.operation.result_rows",
		metric.WithDescription("Number of rows returned per operation execution"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	subscriptionDrops, err := meter.Int64Counter(
		"viewql.subscriptions.dropped",
		metric.WithDescription("Number of subscribers disconnected for falling behind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription drop counter: %w", err)
	}

	return &OperationMetrics{
		duration:          duration,
		operations:        operations,
		errors:            errCounter,
		resultRows:        resultRows,
		subscriptionDrops: subscriptionDrops,
	}, nil
}

// ObserveOperation records one operation execution.
func (m *OperationMetrics) ObserveOperation(ctx context.Context, operation string, kind string, duration time.Duration, rows int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("kind", kind),
	}

	m.duration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if rows >= 0 {
		m.resultRows.Record(ctx, int64(rows), metric.WithAttributes(attrs...))
	}
}

// SubscriptionDropHandler returns a callback suitable for the dispatcher's
// OnDrop hook.
func (m *OperationMetrics) SubscriptionDropHandler() func(topic string) {
	return func(topic string) {
		m.subscriptionDrops.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("topic", topic),
		))
	}
}
