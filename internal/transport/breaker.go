package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/ludus/internal/protocol"
)

// BreakerState is the circuit breaker lifecycle state for one peer.
type BreakerState int

const (
	// BreakerClosed passes calls through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails fast until the reset window elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe through to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("BreakerState(%d)", int(s))
	}
}

// Breaker tracks one remote peer's health record. All contest instances
// addressing the same peer share a single Breaker; mutation is serialized
// behind its mutex.
type Breaker struct {
	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probing    bool
	threshold  int
	resetAfter time.Duration
	now        func() time.Time
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and admits a probe once resetAfter has elapsed.
func NewBreaker(threshold int, resetAfter time.Duration) *Breaker {
	return &Breaker{
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// Allow reports whether a call may be attempted now. When the circuit is
// open it fails fast with CodeBreakerOpen until the reset window elapses,
// at which point exactly one probe is admitted (half-open).
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.resetAfter {
			return protocol.NewError(protocol.CodeBreakerOpen,
				fmt.Sprintf("circuit open since %s", b.openedAt.UTC().Format(time.RFC3339)))
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return protocol.NewError(protocol.CodeBreakerOpen, "half-open probe already in flight")
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the record: any state returns to closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failed call. Reaching the threshold while closed,
// or failing a half-open probe, opens the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current lifecycle state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
