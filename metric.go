package eventbus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the OTel instruments of one bus. With metrics disabled the
// meter is a noop meter and every call is free.
type metrics struct {
	published     metric.Int64Counter
	delivered     metric.Int64Counter
	filtered      metric.Int64Counter
	failed        metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
	asyncDuration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	published, _ := meter.Int64Counter("eventbus.published",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("{event}"))
	delivered, _ := meter.Int64Counter("eventbus.delivered",
		metric.WithDescription("Total number of handler invocations"),
		metric.WithUnit("{call}"))
	filtered, _ := meter.Int64Counter("eventbus.filtered",
		metric.WithDescription("Deliveries skipped by a filter or rate limit"),
		metric.WithUnit("{call}"))
	failed, _ := meter.Int64Counter("eventbus.failed",
		metric.WithDescription("Handler invocations that returned an error or panicked"),
		metric.WithUnit("{call}"))
	subscriptions, _ := meter.Int64UpDownCounter("eventbus.subscriptions",
		metric.WithDescription("Number of active subscriptions"),
		metric.WithUnit("{subscription}"))
	asyncDuration, _ := meter.Float64Histogram("eventbus.publish_async.duration",
		metric.WithDescription("Time until every async handler of a publish returned"),
		metric.WithUnit("ms"))

	return &metrics{
		published:     published,
		delivered:     delivered,
		filtered:      filtered,
		failed:        failed,
		subscriptions: subscriptions,
		asyncDuration: asyncDuration,
	}
}

func eventAttr(eventType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("event", eventType))
}

func (m *metrics) publish(ctx context.Context, eventType string) {
	m.published.Add(ctx, 1, eventAttr(eventType))
}

func (m *metrics) deliver(ctx context.Context, eventType string) {
	m.delivered.Add(ctx, 1, eventAttr(eventType))
}

func (m *metrics) filter(ctx context.Context, eventType string) {
	m.filtered.Add(ctx, 1, eventAttr(eventType))
}

func (m *metrics) fail(ctx context.Context, eventType string) {
	m.failed.Add(ctx, 1, eventAttr(eventType))
}

func (m *metrics) subscribed(ctx context.Context, eventType string) {
	m.subscriptions.Add(ctx, 1, eventAttr(eventType))
}

// unsubscribed lowers the subscription gauge of eventType by n.
func (m *metrics) unsubscribed(ctx context.Context, eventType string, n int64) {
	if n <= 0 {
		return
	}
	m.subscriptions.Add(ctx, -n, eventAttr(eventType))
}

func (m *metrics) asyncDone(ctx context.Context, eventType string, start time.Time) {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	m.asyncDuration.Record(ctx, ms, eventAttr(eventType))
}
