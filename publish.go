package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Publish delivers data to every synchronous subscriber of T, in order, on
// the calling goroutine. It returns after the last handler returned. Handler
// errors and panics are reported and do not stop the remaining handlers.
//
// Subscribers added or removed while Publish runs, including by its own
// handlers, take effect from the next publish.
func Publish[T any](ctx context.Context, b *Bus, data T) {
	entries := snapshotFor[T](b, false)
	if len(entries) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	eventType := typeName[T]()
	publishID := NewID()
	b.published.Add(1)
	b.metrics.publish(ctx, eventType)

	ctx, span := b.startSpan(ctx, eventType, "publish", publishID, len(entries))
	defer span.End()

	for _, e := range entries {
		if !admit(ctx, b, e, data, eventType) {
			continue
		}
		_ = invoke(ctx, b, e, data, publishID, eventType, false, nil)
	}
}

// PublishAsync delivers data to every async subscriber of T. Each handler
// runs in its own goroutine; handlers are entered in subscription order and
// may complete in any order. Filters run before PublishAsync returns.
//
// The returned Pending completes when all handlers have returned. It may be
// ignored to fire and forget.
func PublishAsync[T any](ctx context.Context, b *Bus, data T) *Pending {
	entries := snapshotFor[T](b, true)
	if len(entries) == 0 {
		return completed()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	eventType := typeName[T]()
	publishID := NewID()
	start := time.Now()
	b.published.Add(1)
	b.metrics.publish(ctx, eventType)

	ctx, span := b.startSpan(ctx, eventType, "publish_async", publishID, len(entries))

	p := &Pending{done: make(chan struct{})}
	var wg sync.WaitGroup
	var prev chan struct{}
	for _, e := range entries {
		if !admit(ctx, b, e, data, eventType) {
			continue
		}
		entered := make(chan struct{})
		wg.Add(1)
		p.started++
		go func(e *entry[T], prev, entered chan struct{}) {
			defer wg.Done()
			if prev != nil {
				<-prev
			}
			if err := invoke(ctx, b, e, data, publishID, eventType, true, entered); err != nil {
				p.failed.Add(1)
			}
		}(e, prev, entered)
		prev = entered
	}

	go func() {
		wg.Wait()
		span.End()
		b.metrics.asyncDone(ctx, eventType, start)
		close(p.done)
	}()
	return p
}

// Pending tracks the handlers started by one PublishAsync call.
type Pending struct {
	done    chan struct{}
	started int
	failed  atomic.Int64
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func completed() *Pending {
	return &Pending{done: closedCh}
}

// Done is closed once every started handler has returned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until every started handler has returned or ctx is done.
// Abandoning the wait does not stop the handlers.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Started returns the number of handlers that passed their filter and were
// started.
func (p *Pending) Started() int {
	return p.started
}

// Failed returns how many handlers returned an error or panicked. Final once
// Done is closed.
func (p *Pending) Failed() int {
	return int(p.failed.Load())
}

// snapshotFor returns the dispatch snapshot for T, rebuilding it if a
// subscription changed since the last publish. The slice must not be
// modified.
func snapshotFor[T any](b *Bus, async bool) []*entry[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	l := listFor[T](b.registryFor(async))
	if l == nil {
		return nil
	}
	return l.dispatchSnapshot()
}

// admit runs the filter, rate limit and circuit breaker of e, in that order.
// A panicking filter or limiter is reported like a handler panic and the
// entry is skipped.
func admit[T any](ctx context.Context, b *Bus, e *entry[T], data T, eventType string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.report(ctx, eventType, &PanicError{
				SubscriptionID: e.id,
				EventType:      eventType,
				Value:          r,
				Stack:          string(debug.Stack()),
			})
		}
	}()

	if e.filter != nil && !e.filter(data) {
		b.skip(ctx, eventType)
		return false
	}
	if e.limiter != nil && !e.limiter.Allow(ctx) {
		b.skip(ctx, eventType)
		return false
	}
	if e.breaker != nil && !e.breaker.Allow() {
		b.skip(ctx, eventType)
		b.logger.Debug("circuit open, skipping subscriber",
			"event", eventType,
			"subscription", e.name,
			"state", e.breaker.State())
		return false
	}
	return true
}

// invoke calls the handler of e with a dispatch context and isolates any
// fault. entered, if not nil, is closed right before the handler is called,
// or on the way out if invoke fails earlier.
func invoke[T any](ctx context.Context, b *Bus, e *entry[T], data T, publishID, eventType string, async bool, entered chan struct{}) (err error) {
	enter := func() {
		if entered != nil {
			close(entered)
			entered = nil
		}
	}
	defer enter()

	if e.breaker != nil {
		defer func() {
			if err != nil {
				e.breaker.RecordFailure()
			} else {
				e.breaker.RecordSuccess()
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				SubscriptionID: e.id,
				EventType:      eventType,
				Value:          r,
				Stack:          string(debug.Stack()),
			}
			b.report(ctx, eventType, err)
		}
	}()

	hctx := contextWithDispatch(ctx, &dispatchInfo{
		publishID:      publishID,
		eventType:      eventType,
		subscriptionID: e.id,
		name:           e.name,
		async:          async,
		logger:         b.logger.With("event", eventType, "subscription", e.name),
		bus:            b,
	})

	b.delivered.Add(1)
	b.metrics.deliver(ctx, eventType)
	enter()
	if herr := e.handler(hctx, data); herr != nil {
		err = &HandlerError{SubscriptionID: e.id, EventType: eventType, Err: herr}
		b.report(ctx, eventType, err)
	}
	return err
}

func (b *Bus) skip(ctx context.Context, eventType string) {
	b.filtered.Add(1)
	b.metrics.filter(ctx, eventType)
}

func (b *Bus) startSpan(ctx context.Context, eventType, op, publishID string, handlers int) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, fmt.Sprintf("%s.%s", eventType, op),
		trace.WithAttributes(
			attribute.String(spanKeyBus, b.name),
			attribute.String(spanKeyEventType, eventType),
			attribute.String(spanKeyPublishID, publishID),
			attribute.Int(spanKeyHandlers, handlers)),
		trace.WithSpanKind(trace.SpanKindProducer))
}
