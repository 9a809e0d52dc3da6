package eventbus

import (
	"context"
	"maps"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// testMeter tracks the subscriptions gauge per event attribute and can make
// one counter panic.
type testMeter struct {
	metricnoop.Meter
	panicOn string

	mu    sync.Mutex
	gauge map[string]int64
}

func newTestMeter() *testMeter {
	return &testMeter{gauge: make(map[string]int64)}
}

func (m *testMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return &testCounter{panics: name == m.panicOn}, nil
}

func (m *testMeter) Int64UpDownCounter(string, ...metric.Int64UpDownCounterOption) (metric.Int64UpDownCounter, error) {
	return &testGauge{m: m}, nil
}

func (m *testMeter) subscriptions() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.gauge)
}

type testCounter struct {
	metricnoop.Int64Counter
	panics bool
}

func (c *testCounter) Add(context.Context, int64, ...metric.AddOption) {
	if c.panics {
		panic("meter exploded")
	}
}

type testGauge struct {
	metricnoop.Int64UpDownCounter
	m *testMeter
}

func (g *testGauge) Add(_ context.Context, n int64, opts ...metric.AddOption) {
	attrs := metric.NewAddConfig(opts).Attributes()
	v, _ := attrs.Value("event")
	g.m.mu.Lock()
	g.m.gauge[v.AsString()] += n
	g.m.mu.Unlock()
}

func TestSubscriptionsGauge(t *testing.T) {
	m := newTestMeter()
	b := TestBus()
	b.metrics = newMetrics(m)

	mustSubscribe(t, b, noop[Score])
	sub := mustSubscribe(t, b, noop[Score])
	mustSubscribe(t, b, noop[string])
	mustSubscribeAsync(t, b, noop[Score])
	sub.Release()

	want := map[string]int64{"eventbus.Score": 2, "string": 1}
	if got := m.subscriptions(); !cmp.Equal(got, want) {
		t.Errorf("before close diff: %v", cmp.Diff(want, got))
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	want = map[string]int64{"eventbus.Score": 0, "string": 0}
	if got := m.subscriptions(); !cmp.Equal(got, want) {
		t.Errorf("after close diff: %v", cmp.Diff(want, got))
	}
}

func TestRegistrySizes(t *testing.T) {
	r := make(registry)
	listForInsert[Score](r).insert(&entry[Score]{id: "a"})
	listForInsert[Score](r).insert(&entry[Score]{id: "b"})
	listForInsert[*Score](r).insert(&entry[*Score]{id: "c"})

	want := map[string]int{typeName[Score](): 2, typeName[*Score](): 1}
	if got := r.sizes(); !cmp.Equal(got, want) {
		t.Errorf("diff: %v", cmp.Diff(want, got))
	}
}

func TestPanickingMeterDoesNotStallAsync(t *testing.T) {
	var sink errorSink
	m := newTestMeter()
	m.panicOn = "eventbus.delivered"
	b := TestBus(WithErrorHandler(sink.handle))
	b.metrics = newMetrics(m)

	rec := NewRecorder[Score](nil)
	for i := range 3 {
		mustSubscribeAsync(t, b, rec.Handler(), WithOrder(i))
	}

	p := PublishAsync(context.Background(), b, randomScore())
	if !wait(p.Done(), waitChTimeoutMS) {
		t.Fatal("pending never completed")
	}
	if p.Failed() != 3 {
		t.Errorf("failed = %d, want 3", p.Failed())
	}
	if rec.Count() != 0 {
		t.Errorf("handler calls = %d, want 0", rec.Count())
	}
	for _, err := range sink.all() {
		if !IsHandlerPanic(err) {
			t.Errorf("unexpected fault %v", err)
		}
	}

	// sync dispatch recovers the same way
	mustSubscribe(t, b, rec.Handler())
	Publish(context.Background(), b, randomScore())
	if got := len(sink.all()); got != 4 {
		t.Errorf("faults = %d, want 4", got)
	}
}
