package eventbus

import (
	"reflect"
	"slices"
	"sort"
	"unsafe"

	"github.com/rbaliyan/eventbus/ratelimit"
)

// entry is one subscription of a handler to event type T.
type entry[T any] struct {
	id      string
	name    string
	handler Handler[T]
	key     unsafe.Pointer
	order   int
	filter  func(T) bool
	limiter ratelimit.Limiter
	breaker *CircuitBreaker
}

// entryList holds the entries of one event type sorted by order, plus the
// snapshot handed out to publishers. A snapshot is never modified once built;
// any mutation of entries marks it stale so the next publish rebuilds it.
type entryList[T any] struct {
	entries  []*entry[T]
	snapshot []*entry[T]
	fresh    bool
}

// insert places e after every entry with order <= e.order, so equal orders
// keep subscribe order.
func (l *entryList[T]) insert(e *entry[T]) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].order > e.order
	})
	l.entries = slices.Insert(l.entries, i, e)
	l.fresh = false
}

// remove deletes exactly e. Returns false if e is not present.
func (l *entryList[T]) remove(e *entry[T]) bool {
	i := slices.Index(l.entries, e)
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	l.fresh = false
	return true
}

// removeHandler deletes every entry whose handler has the given identity
// and returns how many were removed.
func (l *entryList[T]) removeHandler(key unsafe.Pointer) int {
	n := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e *entry[T]) bool {
		return e.key == key
	})
	removed := n - len(l.entries)
	if removed > 0 {
		l.fresh = false
	}
	return removed
}

func (l *entryList[T]) dispatchSnapshot() []*entry[T] {
	if !l.fresh {
		l.snapshot = slices.Clone(l.entries)
		l.fresh = true
	}
	return l.snapshot
}

func (l *entryList[T]) size() int {
	return len(l.entries)
}

// registry maps an event type to its *entryList[T]. The concrete list type
// is recovered by the generic caller that knows T.
type registry map[reflect.Type]any

// sized is implemented by every *entryList[T]; used where T is unknown.
type sized interface {
	size() int
}

func listFor[T any](r registry) *entryList[T] {
	if v, ok := r[typeOf[T]()]; ok {
		return v.(*entryList[T])
	}
	return nil
}

func listForInsert[T any](r registry) *entryList[T] {
	if l := listFor[T](r); l != nil {
		return l
	}
	l := &entryList[T]{}
	r[typeOf[T]()] = l
	return l
}

// dropIfEmpty removes T's list once it has no entries, taking its cached
// snapshot with it.
func dropIfEmpty[T any](r registry, l *entryList[T]) {
	if l.size() == 0 {
		delete(r, typeOf[T]())
	}
}

// count returns the number of event types and entries in r.
func (r registry) count() (types, entries int) {
	for _, v := range r {
		types++
		entries += v.(sized).size()
	}
	return types, entries
}

// sizes returns the entry count per event type name, keyed like typeName.
func (r registry) sizes() map[string]int {
	out := make(map[string]int, len(r))
	for t, v := range r {
		out[t.String()] += v.(sized).size()
	}
	return out
}
