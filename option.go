package eventbus

import (
	"github.com/rbaliyan/eventbus/ratelimit"
)

// DefaultOrder is the execution order of subscriptions without WithOrder.
const DefaultOrder = 0

// subscribeOptions holds per-subscription configuration (unexported)
type subscribeOptions struct {
	order   int
	filter  any // func(T) bool, checked against T at subscribe time
	limiter ratelimit.Limiter
	breaker *CircuitBreaker
	name    string
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeOptions)

// WithOrder sets the execution order. Lower values run first; equal values
// run in subscribe order.
func WithOrder(order int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.order = order
	}
}

// WithFilter sets a predicate evaluated on every dispatch. The handler only
// runs when fn returns true. The filter's type must match the subscription's
// event type, otherwise Subscribe returns ErrFilterType.
//
//	eventbus.Subscribe(bus, onHighScore, eventbus.WithFilter(func(s Score) bool {
//	    return s.Value > 100
//	}))
func WithFilter[T any](fn func(T) bool) SubscribeOption {
	return func(o *subscribeOptions) {
		if fn != nil {
			o.filter = fn
		}
	}
}

// WithRateLimit throttles deliveries to this subscription. When the limiter
// has no token the event is skipped for this subscriber and counted as
// filtered. Checked after the filter.
func WithRateLimit(l ratelimit.Limiter) SubscribeOption {
	return func(o *subscribeOptions) {
		if l != nil {
			o.limiter = l
		}
	}
}

// WithCircuitBreaker stops delivering to this subscription after repeated
// handler faults. While the breaker is open events are skipped for this
// subscriber and counted as filtered. Checked after the rate limit. A breaker
// may be shared by several subscriptions.
//
//	cb := eventbus.NewCircuitBreaker(5, 2, 30*time.Second)
//	eventbus.Subscribe(bus, syncInventory, eventbus.WithCircuitBreaker(cb))
func WithCircuitBreaker(cb *CircuitBreaker) SubscribeOption {
	return func(o *subscribeOptions) {
		if cb != nil {
			o.breaker = cb
		}
	}
}

// WithName labels the subscription in logs and handler contexts.
// Defaults to the subscription ID.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.name = name
	}
}

func newSubscribeOptions(opts ...SubscribeOption) *subscribeOptions {
	o := &subscribeOptions{
		order: DefaultOrder,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
