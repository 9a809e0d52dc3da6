package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TestBus creates a new bus configured for testing.
// Logging goes to a discard handler and tracing/metrics are disabled.
//
// Example:
//
//	bus := eventbus.TestBus()
//	rec := eventbus.NewRecorder[Order](nil)
//	eventbus.Subscribe(bus, rec.Handler())
func TestBus(opts ...Option) *Bus {
	base := []Option{
		WithBusName("test-bus"),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithTracing(false),
		WithMetrics(false),
	}
	return New(append(base, opts...)...)
}

// RecordedEvent is a single call to a Recorder handler.
type RecordedEvent[T any] struct {
	Data           T
	PublishID      string
	SubscriptionID string
	Async          bool
	Time           time.Time
}

// Recorder is a helper for testing event handlers.
// It collects every event received for later assertions.
type Recorder[T any] struct {
	mu       sync.Mutex
	received []RecordedEvent[T]
	next     Handler[T]
	handler  Handler[T]
}

// NewRecorder creates a recorder. If next is not nil it is called after the
// event is recorded and its result returned to the bus.
func NewRecorder[T any](next Handler[T]) *Recorder[T] {
	r := &Recorder[T]{next: next}
	r.handler = r.Handle
	return r
}

// Handle records the event.
func (r *Recorder[T]) Handle(ctx context.Context, data T) error {
	r.mu.Lock()
	r.received = append(r.received, RecordedEvent[T]{
		Data:           data,
		PublishID:      ContextPublishID(ctx),
		SubscriptionID: ContextSubscriptionID(ctx),
		Async:          ContextAsync(ctx),
		Time:           time.Now(),
	})
	r.mu.Unlock()

	if r.next != nil {
		return r.next(ctx, data)
	}
	return nil
}

// Handler returns the handler for use with Subscribe. Every call returns the
// same func value, so it can also be passed to Unsubscribe.
func (r *Recorder[T]) Handler() Handler[T] {
	return r.handler
}

// Received returns a copy of all recorded calls
func (r *Recorder[T]) Received() []RecordedEvent[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]RecordedEvent[T], len(r.received))
	copy(result, r.received)
	return result
}

// Events returns the payloads received, in arrival order.
func (r *Recorder[T]) Events() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]T, 0, len(r.received))
	for _, c := range r.received {
		result = append(result, c.Data)
	}
	return result
}

// Count returns the number of calls received
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// Reset clears all recorded calls
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.received = nil
	r.mu.Unlock()
}

// WaitFor waits until the recorder has received at least n calls or timeout is reached.
// Returns true if the expected count was reached, false on timeout.
func (r *Recorder[T]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Count() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
