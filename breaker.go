package eventbus

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed means events are delivered normally
	CircuitClosed CircuitState = iota
	// CircuitOpen means the subscriber failed too often and is skipped
	CircuitOpen
	// CircuitHalfOpen means deliveries are let through to test recovery
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker skips a subscriber whose handler keeps failing.
//
// After failureThreshold consecutive faults the circuit opens and the
// subscriber is skipped. Once timeout has passed the circuit goes half-open
// and deliveries resume; successThreshold consecutive successes close it,
// any fault opens it again.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	timeout          time.Duration

	state         CircuitState
	failures      int
	successes     int
	lastStateTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
// failureThreshold: consecutive faults before opening (default: 5)
// successThreshold: consecutive successes in half-open before closing (default: 2)
// timeout: time to stay open before going half-open (default: 30s)
func NewCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            CircuitClosed,
		lastStateTime:    time.Now(),
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether the next event may be delivered. An open circuit
// whose timeout has passed moves to half-open and allows.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.lastStateTime) < cb.timeout {
			return false
		}
		cb.setState(CircuitHalfOpen)
	}
	return true
}

// RecordSuccess records a handler call that returned nil.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure records a handler error or panic.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes = 0
	cb.failures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setState(CircuitClosed)
}

// setState switches state and restarts the counters. Caller holds cb.mu.
func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.successes = 0
	cb.lastStateTime = time.Now()
}
