package transport

import (
	"context"
	"time"

	"github.com/roach88/ludus/internal/protocol"
)

// Caller is the abstract wire boundary: send an envelope to a peer and
// await its typed response under the caller's context deadline. Concrete
// encodings (HTTP, JSON-RPC framing) live outside the engine; tests and
// the scenario harness supply in-process implementations.
//
// A Call must either return a response envelope, a classified
// *protocol.Error, or the context's error on expiry/cancellation.
type Caller interface {
	Call(ctx context.Context, peer string, env protocol.Envelope) (protocol.Envelope, error)
	// Send delivers without awaiting a response. Best effort.
	Send(ctx context.Context, peer string, env protocol.Envelope) error
}

// Config controls retry and circuit breaker behaviour.
type Config struct {
	// MaxAttempts bounds total tries per Call, first attempt included.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps backoff growth.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// BreakerThreshold is the consecutive-failure count that opens a
	// peer's circuit.
	BreakerThreshold int
	// BreakerReset is how long an open circuit waits before allowing a
	// half-open probe.
	BreakerReset time.Duration
}

// DefaultConfig returns the standard policy scaled by one time-unit:
// 3 attempts, backoff 2 units doubling, capped at 10 units.
func DefaultConfig(unit time.Duration) Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        2 * unit,
		MaxDelay:         10 * unit,
		Multiplier:       2.0,
		BreakerThreshold: 3,
		BreakerReset:     30 * unit,
	}
}

// withDefaults fills zero fields so a partially specified config behaves.
func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 50 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
	return c
}
