package eventbus

import (
	"reflect"
	"unsafe"

	"github.com/google/uuid"
)

const (
	spanKeyBus       = "eventbus.bus"
	spanKeyEventType = "eventbus.event"
	spanKeyPublishID = "eventbus.publish.id"
	spanKeyHandlers  = "eventbus.handlers"
)

// NewID generates a new unique ID
func NewID() string {
	return uuid.NewString()
}

// typeOf returns the registry key for T.
func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// typeName returns a printable name for T, used in logs, spans and metrics.
func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// handlerKey returns the identity of a handler func value: the address of
// its closure record. A top-level function or a non-capturing literal always
// yields the same key; each evaluation of a capturing literal or a method
// value (obj.Method) yields a new one.
func handlerKey[T any](h Handler[T]) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&h))
}
