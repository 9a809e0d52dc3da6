package eventbus

import (
	"sync"
)

// Subscription is the token returned by Subscribe and SubscribeAsync.
// Releasing it removes exactly the subscription it was issued for, even when
// the same handler is subscribed more than once.
type Subscription struct {
	id        string
	eventType string
	async     bool
	once      sync.Once
	release   func()
}

// ID returns the subscription ID
func (s *Subscription) ID() string {
	return s.id
}

// EventType returns the Go type name the subscription listens to.
func (s *Subscription) EventType() string {
	return s.eventType
}

// Async reports whether the subscription was made with SubscribeAsync.
func (s *Subscription) Async() bool {
	return s.async
}

// Release removes the subscription. Only the first call has an effect;
// releasing after the bus is closed or after an Unsubscribe already removed
// the handler is a no-op. Publishes already dispatching may still call the
// handler once.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Close calls Release. It lets a subscription be used as an io.Closer.
func (s *Subscription) Close() error {
	s.Release()
	return nil
}

// Group releases a set of subscriptions together, typically on shutdown of
// the component that owns them.
//
//	var subs eventbus.Group
//	subs.Add(eventbus.Subscribe(bus, onCreated))
//	subs.Add(eventbus.Subscribe(bus, onDeleted))
//	defer subs.Release()
type Group struct {
	mu       sync.Mutex
	subs     []*Subscription
	released bool
}

// Add adds a subscription to the group. It accepts the results of Subscribe
// directly; a non-nil err is returned unchanged and nothing is added. Once the
// group is released, added subscriptions are released immediately.
func (g *Group) Add(sub *Subscription, err error) error {
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		sub.Release()
		return nil
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
	return nil
}

// Release releases every subscription in the group.
func (g *Group) Release() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.released = true
	g.mu.Unlock()

	for _, s := range subs {
		s.Release()
	}
}

// Close calls Release.
func (g *Group) Close() error {
	g.Release()
	return nil
}

// Len returns the number of subscriptions held.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}
