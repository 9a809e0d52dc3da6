package eventbus

import (
	"errors"
	"fmt"
)

// Registration errors. These are the only errors returned to callers;
// handler faults are reported through the bus logger and error handler.
var (
	// ErrNilHandler is returned when Subscribe is called with a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrFilterType is returned when a filter built for one event type is
	// passed to a subscription of another.
	ErrFilterType = errors.New("filter does not match event type")

	// ErrBusClosed is returned when subscribing to a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrHandlerPanic matches any *PanicError with errors.Is.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerError wraps an error returned by a handler.
type HandlerError struct {
	// SubscriptionID identifies the failing subscription.
	SubscriptionID string

	// EventType is the Go type name of the event being dispatched.
	EventType string

	// Err is the error the handler returned.
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s failed: %v", e.SubscriptionID, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking handler or filter.
type PanicError struct {
	SubscriptionID string
	EventType      string

	// Value is the value passed to panic.
	Value any

	// Stack is the goroutine stack captured at recovery.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s for %s panicked: %v", e.SubscriptionID, e.EventType, e.Value)
}

// Is lets errors.Is match ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// IsHandlerPanic reports whether err came from a recovered panic.
func IsHandlerPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
