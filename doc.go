// Package eventbus provides a typed, in-process publish/subscribe bus.
//
// Events are plain Go values; the event type is the Go type itself. Handlers
// subscribe to a type and are called for every value of exactly that type
// published on the same Bus. Score and *Score are different event types.
//
// Basic example:
//
//	type Score struct {
//	    Player string
//	    Value  int
//	}
//
//	bus := eventbus.New(eventbus.WithBusName("game"))
//	defer bus.Close(ctx)
//
//	sub, err := eventbus.Subscribe(bus, func(ctx context.Context, s Score) error {
//	    fmt.Printf("%s scored %d\n", s.Player, s.Value)
//	    return nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Release()
//
//	eventbus.Publish(ctx, bus, Score{Player: "ana", Value: 120})
//
// Ordering:
// Handlers run in ascending WithOrder value (default 0). Handlers with the
// same order run in the order they subscribed.
//
//	eventbus.Subscribe(bus, audit, eventbus.WithOrder(10))
//	eventbus.Subscribe(bus, validate, eventbus.WithOrder(5)) // runs first
//
// Filtering:
// WithFilter skips a handler for values the predicate rejects. WithRateLimit
// skips it when the limiter has no token.
//
//	eventbus.Subscribe(bus, onHighScore,
//	    eventbus.WithFilter(func(s Score) bool { return s.Value > 100 }),
//	    eventbus.WithRateLimit(ratelimit.NewTokenBucket(10, 1)))
//
// Synchronous and asynchronous delivery:
// Publish calls the handlers registered with Subscribe one after another on
// the caller's goroutine. PublishAsync starts every handler registered with
// SubscribeAsync in its own goroutine and returns a Pending that completes
// once they have all returned.
//
//	p := eventbus.PublishAsync(ctx, bus, Score{Player: "bo", Value: 7})
//	if err := p.Wait(ctx); err != nil {
//	    // ctx expired; handlers keep running
//	}
//
// Handler faults:
// A handler that returns an error or panics never affects the publisher or
// the other handlers. The fault is logged on the bus logger, counted, and
// passed to the WithErrorHandler callback as a *HandlerError or *PanicError.
//
// Reentrancy:
// Handlers may subscribe, unsubscribe and publish on the same bus. Changes
// made during a publish apply from the next publish.
//
// Bus Options:
//   - WithBusName: name used for logs, metrics and tracing. Default "eventbus".
//   - WithLogger: set logger for the bus. Default slog.Default().
//   - WithMetrics: enable/disable OpenTelemetry metrics. Default is true.
//   - WithTracing: enable/disable OpenTelemetry tracing. Default is true.
//   - WithErrorHandler: callback for handler faults.
//
// Subscribe Options:
//   - WithOrder: execution order, lower first.
//   - WithFilter: per-event predicate.
//   - WithRateLimit: per-subscription throttle.
//   - WithCircuitBreaker: skip a subscriber that keeps failing.
//   - WithName: label for logs and handler context.
package eventbus
