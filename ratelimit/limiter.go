// Package ratelimit throttles how often a subscriber reacts to high-frequency
// events such as per-frame input, physics contacts or score ticks.
//
// A limiter is attached to a single subscription with eventbus.WithRateLimit.
// On every dispatch the bus asks the limiter for a token; when none is
// available the event is skipped for that subscriber only. Other subscribers
// of the same event are unaffected.
//
// # Basic Usage
//
//	// at most 10 deliveries per second, bursts of 3
//	limiter := ratelimit.NewTokenBucket(10, 3)
//
//	// at most one delivery every 250ms
//	limiter := ratelimit.Every(250*time.Millisecond)
//
//	sub, err := eventbus.Subscribe(bus, onContact, eventbus.WithRateLimit(limiter))
//
// Limiters are token buckets backed by golang.org/x/time/rate and are safe for
// concurrent use.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether an event may be delivered right now.
//
// All implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether an event can happen now and consumes a token
	// if so. It never blocks.
	Allow(ctx context.Context) bool
}

// TokenBucket is an in-memory token bucket.
//
// Tokens are added at the configured rate up to burst. Each delivery
// consumes one token.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket that refills at rps tokens per second
// and holds at most burst tokens. A burst below 1 is raised to 1 so the
// bucket can ever allow anything.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Every creates a limiter that allows one event per interval with no burst.
func Every(interval time.Duration) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Unlimited creates a limiter that always allows.
func Unlimited() *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// Allow consumes one token if available.
func (t *TokenBucket) Allow(ctx context.Context) bool {
	return t.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// SetLimit updates the refill rate.
func (t *TokenBucket) SetLimit(rps float64) {
	t.limiter.SetLimit(rate.Limit(rps))
}

// SetBurst updates the bucket size.
func (t *TokenBucket) SetBurst(burst int) {
	t.limiter.SetBurst(burst)
}

// Limit returns the refill rate in tokens per second.
func (t *TokenBucket) Limit() float64 {
	return float64(t.limiter.Limit())
}

// Burst returns the bucket size.
func (t *TokenBucket) Burst() int {
	return t.limiter.Burst()
}

// Tokens returns the number of tokens currently available.
func (t *TokenBucket) Tokens() float64 {
	return t.limiter.Tokens()
}

var _ Limiter = (*TokenBucket)(nil)
