package eventbus

import (
	"context"
	"fmt"
)

// Handler handles events of type T. A returned error is reported through the
// bus logger and error handler; it never stops other handlers.
type Handler[T any] func(ctx context.Context, data T) error

// Subscribe registers h for synchronous delivery of T, in the position given
// by WithOrder. The returned Subscription removes this registration.
//
// Returns ErrNilHandler for a nil handler, ErrFilterType when WithFilter was
// built for another type and ErrBusClosed after Close.
func Subscribe[T any](b *Bus, h Handler[T], opts ...SubscribeOption) (*Subscription, error) {
	return subscribe(b, h, false, opts...)
}

// SubscribeAsync registers h for delivery by PublishAsync. Ordering and
// filtering work as for Subscribe; order decides the order handlers are
// started in.
func SubscribeAsync[T any](b *Bus, h Handler[T], opts ...SubscribeOption) (*Subscription, error) {
	return subscribe(b, h, true, opts...)
}

func subscribe[T any](b *Bus, h Handler[T], async bool, opts ...SubscribeOption) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	o := newSubscribeOptions(opts...)
	eventType := typeName[T]()

	var filter func(T) bool
	if o.filter != nil {
		f, ok := o.filter.(func(T) bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T used for %s", ErrFilterType, o.filter, eventType)
		}
		filter = f
	}

	id := NewID()
	name := o.name
	if name == "" {
		name = id
	}
	e := &entry[T]{
		id:      id,
		name:    name,
		handler: h,
		key:     handlerKey(h),
		order:   o.order,
		filter:  filter,
		limiter: o.limiter,
		breaker: o.breaker,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	listForInsert[T](b.registryFor(async)).insert(e)
	b.mu.Unlock()

	b.metrics.subscribed(context.Background(), eventType)
	b.logger.Debug("subscribed",
		"event", eventType,
		"subscription", name,
		"order", o.order,
		"async", async,
	)

	return &Subscription{
		id:        id,
		eventType: eventType,
		async:     async,
		release: func() {
			removeEntry(b, e, async)
		},
	}, nil
}

// removeEntry removes exactly e. It is a no-op if e is already gone.
func removeEntry[T any](b *Bus, e *entry[T], async bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	r := b.registryFor(async)
	l := listFor[T](r)
	if l == nil || !l.remove(e) {
		b.mu.Unlock()
		return
	}
	dropIfEmpty(r, l)
	b.mu.Unlock()

	eventType := typeName[T]()
	b.metrics.unsubscribed(context.Background(), eventType, 1)
	b.logger.Debug("unsubscribed", "event", eventType, "subscription", e.name, "async", async)
}

// Unsubscribe removes every synchronous subscription of h for T. Handlers are
// matched by func value: a top-level function matches itself, but each
// evaluation of a closure or method value (obj.Method) is a distinct handler.
// Keep the Subscription, or the func value itself, to unsubscribe those.
// An unknown handler is ignored.
func Unsubscribe[T any](b *Bus, h Handler[T]) {
	unsubscribe(b, h, false)
}

// UnsubscribeAsync is Unsubscribe for subscriptions made with SubscribeAsync.
func UnsubscribeAsync[T any](b *Bus, h Handler[T]) {
	unsubscribe(b, h, true)
}

func unsubscribe[T any](b *Bus, h Handler[T], async bool) {
	if h == nil {
		return
	}
	key := handlerKey(h)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	r := b.registryFor(async)
	l := listFor[T](r)
	if l == nil {
		b.mu.Unlock()
		return
	}
	n := l.removeHandler(key)
	dropIfEmpty(r, l)
	b.mu.Unlock()

	if n == 0 {
		return
	}
	eventType := typeName[T]()
	b.metrics.unsubscribed(context.Background(), eventType, int64(n))
	b.logger.Debug("unsubscribed handler", "event", eventType, "removed", n, "async", async)
}
