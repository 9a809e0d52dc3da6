package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultBusName is used when WithBusName is not given.
var DefaultBusName = "eventbus"

// options holds configuration for bus (unexported)
type options struct {
	name           string
	logger         *slog.Logger
	metricsEnabled bool
	tracingEnabled bool
	onError        func(error)
}

// Option configures a Bus.
type Option func(*options)

// WithBusName sets the bus name used for the logger component, meter and
// tracer.
func WithBusName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger for the bus
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables/disables OpenTelemetry metrics. Default is true.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithTracing enables/disables OpenTelemetry tracing. Default is true.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithErrorHandler sets a callback for handler faults. It receives a
// *HandlerError or *PanicError after the fault has been logged. It runs on
// the goroutine that executed the handler and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		name:           DefaultBusName,
		logger:         slog.Default(),
		metricsEnabled: true,
		tracingEnabled: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Bus is an in-process typed event bus.
//
// Handlers are registered per event type with Subscribe or SubscribeAsync and
// invoked by Publish or PublishAsync. A single mutex guards the registries; it
// is never held while a filter or handler runs, so handlers may subscribe,
// unsubscribe and publish freely.
//
// A Bus has no global state. Create as many as needed.
type Bus struct {
	id      string
	name    string
	logger  *slog.Logger
	onError func(error)
	metrics *metrics
	tracer  trace.Tracer

	mu       sync.Mutex
	closed   bool
	syncReg  registry
	asyncReg registry

	published atomic.Uint64
	delivered atomic.Uint64
	filtered  atomic.Uint64
	failed    atomic.Uint64
}

// New creates a bus.
func New(opts ...Option) *Bus {
	o := newOptions(opts...)

	var meter metric.Meter
	if o.metricsEnabled {
		meter = otel.Meter(o.name)
	} else {
		meter = metricnoop.NewMeterProvider().Meter(o.name)
	}

	var tracer trace.Tracer
	if o.tracingEnabled {
		tracer = otel.Tracer(o.name)
	} else {
		tracer = tracenoop.NewTracerProvider().Tracer(o.name)
	}

	return &Bus{
		id:       NewID(),
		name:     o.name,
		logger:   o.logger.With("component", "eventbus>"+o.name),
		onError:  o.onError,
		metrics:  newMetrics(meter),
		tracer:   tracer,
		syncReg:  make(registry),
		asyncReg: make(registry),
	}
}

// ID returns the bus ID
func (b *Bus) ID() string {
	return b.id
}

// Name returns the bus name
func (b *Bus) Name() string {
	return b.name
}

// Logger returns the bus logger
func (b *Bus) Logger() *slog.Logger {
	return b.logger
}

// Running returns true until Close is called.
func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close drops every subscription. Afterwards Subscribe returns ErrBusClosed,
// publishes do nothing and releasing existing subscriptions is a no-op.
// Async handlers already running are not interrupted.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	_, syncEntries := b.syncReg.count()
	_, asyncEntries := b.asyncReg.count()
	dropped := []map[string]int{b.syncReg.sizes(), b.asyncReg.sizes()}
	b.syncReg = nil
	b.asyncReg = nil
	b.mu.Unlock()

	for _, m := range dropped {
		for eventType, n := range m {
			b.metrics.unsubscribed(ctx, eventType, int64(n))
		}
	}
	b.logger.Debug("bus closed", "subscriptions", syncEntries, "async_subscriptions", asyncEntries)
	return nil
}

// registryFor returns the sync or async registry. Caller holds b.mu.
func (b *Bus) registryFor(async bool) registry {
	if async {
		return b.asyncReg
	}
	return b.syncReg
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	EventTypes         int    `json:"event_types"`
	AsyncEventTypes    int    `json:"async_event_types"`
	Subscriptions      int    `json:"subscriptions"`
	AsyncSubscriptions int    `json:"async_subscriptions"`
	Published          uint64 `json:"published"`
	Delivered          uint64 `json:"delivered"`
	Filtered           uint64 `json:"filtered"`
	Failed             uint64 `json:"failed"`
}

// Stats returns subscription counts and dispatch counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	types, subs := b.syncReg.count()
	asyncTypes, asyncSubs := b.asyncReg.count()
	b.mu.Unlock()

	return Stats{
		EventTypes:         types,
		AsyncEventTypes:    asyncTypes,
		Subscriptions:      subs,
		AsyncSubscriptions: asyncSubs,
		Published:          b.published.Load(),
		Delivered:          b.delivered.Load(),
		Filtered:           b.filtered.Load(),
		Failed:             b.failed.Load(),
	}
}

// Handlers returns the number of sync subscriptions for T.
func Handlers[T any](b *Bus) int {
	return countFor[T](b, false)
}

// AsyncHandlers returns the number of async subscriptions for T.
func AsyncHandlers[T any](b *Bus) int {
	return countFor[T](b, true)
}

func countFor[T any](b *Bus, async bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l := listFor[T](b.registryFor(async)); l != nil {
		return l.size()
	}
	return 0
}

// report records a handler fault: log, counters, error callback. The error
// callback is itself isolated so it cannot break dispatch.
func (b *Bus) report(ctx context.Context, eventType string, err error) {
	b.failed.Add(1)
	b.metrics.fail(ctx, eventType)
	trace.SpanFromContext(ctx).RecordError(err)

	if pe, ok := err.(*PanicError); ok {
		b.logger.Error("handler panic recovered",
			"event", eventType,
			"subscription", pe.SubscriptionID,
			"panic", pe.Value,
			"stack", pe.Stack,
		)
	} else {
		b.logger.Error("handler failed",
			"event", eventType,
			"error", err,
		)
	}

	if b.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("error handler panic recovered", "event", eventType, "panic", r)
		}
	}()
	b.onError(err)
}
