package eventbus

import (
	"context"
	"log/slog"
)

const (
	dispatchContextKey contextKey = iota
)

// contextKey
type contextKey int

// dispatchInfo is attached to the context of every handler call.
type dispatchInfo struct {
	publishID      string
	eventType      string
	subscriptionID string
	name           string
	async          bool
	logger         *slog.Logger
	bus            *Bus
}

func contextWithDispatch(ctx context.Context, d *dispatchInfo) context.Context {
	return context.WithValue(ctx, dispatchContextKey, d)
}

func dispatchFrom(ctx context.Context) (*dispatchInfo, bool) {
	d, ok := ctx.Value(dispatchContextKey).(*dispatchInfo)
	return d, ok
}

// ContextPublishID returns the ID of the publish call being dispatched.
// Every handler invoked by the same Publish or PublishAsync sees the same ID.
func ContextPublishID(ctx context.Context) string {
	if d, ok := dispatchFrom(ctx); ok {
		return d.publishID
	}
	return ""
}

// ContextEventType get the event type name stored in context
func ContextEventType(ctx context.Context) string {
	if d, ok := dispatchFrom(ctx); ok {
		return d.eventType
	}
	return ""
}

// ContextSubscriptionID get the subscription id stored in context
func ContextSubscriptionID(ctx context.Context) string {
	if d, ok := dispatchFrom(ctx); ok {
		return d.subscriptionID
	}
	return ""
}

// ContextSubscriptionName returns the WithName label of the running
// subscription, or its ID when none was set.
func ContextSubscriptionName(ctx context.Context) string {
	if d, ok := dispatchFrom(ctx); ok {
		return d.name
	}
	return ""
}

// ContextAsync reports whether the handler was invoked by PublishAsync.
func ContextAsync(ctx context.Context) bool {
	if d, ok := dispatchFrom(ctx); ok {
		return d.async
	}
	return false
}

// ContextLogger returns a logger annotated with the event type and
// subscription. Falls back to slog.Default outside a handler.
func ContextLogger(ctx context.Context) *slog.Logger {
	if d, ok := dispatchFrom(ctx); ok && d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// ContextBus returns the bus dispatching the current handler, or nil.
func ContextBus(ctx context.Context) *Bus {
	if d, ok := dispatchFrom(ctx); ok {
		return d.bus
	}
	return nil
}
