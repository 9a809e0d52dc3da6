package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

const waitChTimeoutMS = 1000

func wait(ch <-chan struct{}, timeout int) bool {
	select {
	case <-ch:
		return true
	case <-time.After(time.Millisecond * time.Duration(timeout)):
		return false
	}
}

type Score struct {
	Player string
	Value  int
}

func randomScore() Score {
	return Score{
		Player: faker.Name().FirstName(),
		Value:  faker.RandomInt(0, 1000),
	}
}

// errorSink collects faults passed to WithErrorHandler.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) handle(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func noop[T any](context.Context, T) error { return nil }

func TestNew(t *testing.T) {
	b := New(WithLogger(slog.New(slog.DiscardHandler)))
	if b.Name() != DefaultBusName {
		t.Errorf("name = %q, want %q", b.Name(), DefaultBusName)
	}
	if b.ID() == "" {
		t.Error("expected a bus id")
	}
	if !b.Running() {
		t.Error("new bus should be running")
	}
	if b.Logger() == nil {
		t.Error("expected a logger")
	}

	other := TestBus(WithBusName("other"))
	if other.Name() != "other" {
		t.Errorf("name = %q, want other", other.Name())
	}
	if other.ID() == b.ID() {
		t.Error("buses must have distinct ids")
	}
}

func TestBusesAreIndependent(t *testing.T) {
	b1, b2 := TestBus(), TestBus()
	r1, r2 := NewRecorder[Score](nil), NewRecorder[Score](nil)
	if _, err := Subscribe(b1, r1.Handler()); err != nil {
		t.Fatal(err)
	}
	if _, err := Subscribe(b2, r2.Handler()); err != nil {
		t.Fatal(err)
	}

	Publish(context.Background(), b1, randomScore())
	if r1.Count() != 1 || r2.Count() != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", r1.Count(), r2.Count())
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	b := TestBus()
	rec := NewRecorder[Score](nil)
	arec := NewRecorder[Score](nil)

	sub, err := Subscribe(b, rec.Handler())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SubscribeAsync(b, arec.Handler()); err != nil {
		t.Fatal(err)
	}

	if err := b.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.Running() {
		t.Error("bus should not be running after close")
	}
	if err := b.Close(ctx); err != nil {
		t.Errorf("second close: %v", err)
	}

	if _, err := Subscribe(b, rec.Handler()); !errors.Is(err, ErrBusClosed) {
		t.Errorf("subscribe after close: got %v, want ErrBusClosed", err)
	}
	if _, err := SubscribeAsync(b, rec.Handler()); !errors.Is(err, ErrBusClosed) {
		t.Errorf("subscribe async after close: got %v, want ErrBusClosed", err)
	}

	Publish(ctx, b, randomScore())
	p := PublishAsync(ctx, b, randomScore())
	if !wait(p.Done(), waitChTimeoutMS) {
		t.Fatal("pending of a closed bus should be complete")
	}
	if rec.Count() != 0 || arec.Count() != 0 {
		t.Error("handlers must not run after close")
	}

	sub.Release()
	Unsubscribe(b, rec.Handler())
	if Handlers[Score](b) != 0 || AsyncHandlers[Score](b) != 0 {
		t.Error("closed bus should report no handlers")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	b := TestBus()

	if _, err := Subscribe(b, noop[Score]); err != nil {
		t.Fatal(err)
	}
	if _, err := Subscribe(b, func(context.Context, Score) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := Subscribe(b, noop[Score], WithFilter(func(Score) bool { return false })); err != nil {
		t.Fatal(err)
	}
	if _, err := Subscribe(b, noop[string]); err != nil {
		t.Fatal(err)
	}
	if _, err := SubscribeAsync(b, noop[Score]); err != nil {
		t.Fatal(err)
	}

	Publish(ctx, b, randomScore())
	Publish(ctx, b, 42) // no subscribers for int

	want := Stats{
		EventTypes:         2,
		AsyncEventTypes:    1,
		Subscriptions:      4,
		AsyncSubscriptions: 1,
		Published:          1,
		Delivered:          2,
		Filtered:           1,
		Failed:             1,
	}
	if got := b.Stats(); !cmp.Equal(got, want) {
		t.Errorf("stats diff: %v", cmp.Diff(want, got))
	}
}

func TestErrorHandlerPanicIsContained(t *testing.T) {
	b := TestBus(WithErrorHandler(func(error) {
		panic("error handler exploded")
	}))
	rec := NewRecorder[Score](nil)

	if _, err := Subscribe(b, func(context.Context, Score) error {
		return errors.New("fail")
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := Subscribe(b, rec.Handler()); err != nil {
		t.Fatal(err)
	}

	Publish(context.Background(), b, randomScore())
	if rec.Count() != 1 {
		t.Errorf("later handler calls = %d, want 1", rec.Count())
	}
}

func TestDefaultTelemetry(t *testing.T) {
	// global otel providers are noops unless installed; exercise the enabled path
	b := New(WithLogger(slog.New(slog.DiscardHandler)), WithBusName("telemetry"))
	rec := NewRecorder[Score](nil)
	if _, err := Subscribe(b, rec.Handler()); err != nil {
		t.Fatal(err)
	}
	if _, err := SubscribeAsync(b, rec.Handler()); err != nil {
		t.Fatal(err)
	}

	Publish(context.Background(), b, randomScore())
	p := PublishAsync(context.Background(), b, randomScore())
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec.Count() != 2 {
		t.Errorf("calls = %d, want 2", rec.Count())
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
