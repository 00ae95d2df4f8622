// Package retry implements the bounded exponential backoff policy used to
// wrap remote provider calls.
//
// Eligibility is driven by error classification: network, timeout, and
// rate-limit failures retry up to a bounded attempt count; auth and
// validation failures surface immediately so the user can re-link the
// account.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/northapp/northsync/internal/provider"
)

// Policy computes retry eligibility and backoff delays.
//
// Delays follow base * 2^attempt with multiplicative jitter, capped at
// MaxDelay. Rate-limit failures use RateLimitBase instead of Base, which
// should be substantially larger.
type Policy struct {
	// Base is the first-attempt delay for network/timeout failures.
	Base time.Duration

	// RateLimitBase is the first-attempt delay after a provider throttle.
	RateLimitBase time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// MaxAttempts bounds total attempts (initial call + retries).
	MaxAttempts int

	// JitterFraction is the +/- window applied to each delay, as a
	// fraction of the pre-jitter delay (0.25 means +/-25%).
	JitterFraction float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Default returns the policy used in production: 1s base, 30s rate-limit
// base, 2m cap, 5 attempts, 25% jitter.
func Default() *Policy {
	return &Policy{
		Base:           time.Second,
		RateLimitBase:  30 * time.Second,
		MaxDelay:       2 * time.Minute,
		MaxAttempts:    5,
		JitterFraction: 0.25,
	}
}

// ShouldRetry reports whether the given failure may be retried at the
// given attempt number. Attempts are zero-based: attempt 0 is the initial
// call, so a MaxAttempts of 5 permits retries for attempts 0 through 3.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts-1 {
		return false
	}
	return provider.Classify(err).Retryable()
}

// NextDelay returns the backoff delay before retrying attempt+1, for
// ordinary retryable failures. The result never exceeds MaxDelay.
func (p *Policy) NextDelay(attempt int) time.Duration {
	return p.delay(p.Base, attempt)
}

// DelayFor returns the backoff delay appropriate for the given failure.
// Rate-limit failures back off from RateLimitBase.
func (p *Policy) DelayFor(err error, attempt int) time.Duration {
	if provider.Classify(err) == provider.ClassRateLimit {
		return p.delay(p.RateLimitBase, attempt)
	}
	return p.delay(p.Base, attempt)
}

// Sleep blocks for the given delay or until ctx is cancelled.
func (p *Policy) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// delay computes base * 2^attempt, applies jitter, and caps the result.
func (p *Policy) delay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Shift with overflow guard: past 62 doublings everything caps anyway.
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d < 0 {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	d = p.jitter(d)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// jitter applies the +/- JitterFraction window to d.
func (p *Policy) jitter(d time.Duration) time.Duration {
	if p.JitterFraction <= 0 {
		return d
	}

	p.mu.Lock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// Uniform in [-JitterFraction, +JitterFraction].
	f := (p.rng.Float64()*2 - 1) * p.JitterFraction
	p.mu.Unlock()

	return d + time.Duration(float64(d)*f)
}
