package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/ludus/internal/protocol"
)

// Client wraps a Caller with retry-with-backoff and a per-peer circuit
// breaker. Only errors classified retryable are retried; terminal and
// timeout errors propagate on the first occurrence. Retries never extend
// the caller's context deadline - a retry that cannot complete inside the
// original window surfaces the deadline error instead.
type Client struct {
	caller Caller
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewClient creates a resilient client over the given wire caller.
func NewClient(caller Caller, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		caller:   caller,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Call sends env to peer and awaits the typed response, applying the
// retry policy for retryable failures and the peer's circuit breaker
// around every attempt.
func (c *Client) Call(ctx context.Context, peer string, env protocol.Envelope) (protocol.Envelope, error) {
	br := c.breakerFor(peer)
	delay := c.cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := br.Allow(); err != nil {
			// Fail fast without touching the wire; still retryable so a
			// later attempt can probe once the reset window elapses.
			lastErr = err
		} else {
			resp, err := c.caller.Call(ctx, peer, env)
			if err == nil {
				br.RecordSuccess()
				return resp, nil
			}
			br.RecordFailure()
			lastErr = err

			if !protocol.IsRetryable(err) {
				c.logger.Debug("call failed, not retryable",
					"peer", peer,
					"message_type", env.Type.String(),
					"conversation_id", env.ConversationID,
					"class", protocol.ClassOf(err).String(),
					"error", err,
				)
				return protocol.Envelope{}, err
			}
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		c.logger.Debug("call failed, backing off",
			"peer", peer,
			"message_type", env.Type.String(),
			"conversation_id", env.ConversationID,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)

		if err := sleep(ctx, delay); err != nil {
			// Deadline or cancellation during backoff wins over the retry.
			return protocol.Envelope{}, err
		}
		delay = nextDelay(delay, c.cfg)
	}

	return protocol.Envelope{}, fmt.Errorf("call %s to %s exhausted %d attempts: %w",
		env.Type, peer, c.cfg.MaxAttempts, lastErr)
}

// Send delivers fire-and-forget. No retry: delivery confirmation, where
// it matters, comes from a later acknowledgment exchange.
func (c *Client) Send(ctx context.Context, peer string, env protocol.Envelope) error {
	br := c.breakerFor(peer)
	if err := br.Allow(); err != nil {
		return err
	}
	if err := c.caller.Send(ctx, peer, env); err != nil {
		br.RecordFailure()
		return err
	}
	br.RecordSuccess()
	return nil
}

// Heartbeat probes a peer with a single liveness exchange, bypassing the
// retry policy. A half-open breaker admits exactly one of these, so a
// successful probe is what closes the circuit again.
func (c *Client) Heartbeat(ctx context.Context, peer string, sender protocol.SenderID, token string) error {
	br := c.breakerFor(peer)
	if err := br.Allow(); err != nil {
		return err
	}

	env := protocol.NewEnvelope(protocol.TypeHeartbeat, sender, uuid.NewString(), token, nil)
	resp, err := c.caller.Call(ctx, peer, env)
	if err != nil {
		br.RecordFailure()
		return err
	}
	if resp.Type != protocol.TypeHeartbeatAck {
		br.RecordFailure()
		return protocol.NewError(protocol.CodeInvalidState,
			fmt.Sprintf("heartbeat to %s answered with %s", peer, resp.Type))
	}
	br.RecordSuccess()
	return nil
}

// BreakerState exposes a peer's current circuit state for callers that
// want to fail fast before building a request.
func (c *Client) BreakerState(peer string) BreakerState {
	return c.breakerFor(peer).State()
}

// breakerFor returns the shared breaker for a peer key, creating it on
// first use.
func (c *Client) breakerFor(peer string) *Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[peer]
	if !ok {
		br = NewBreaker(c.cfg.BreakerThreshold, c.cfg.BreakerReset)
		c.breakers[peer] = br
	}
	return br
}

// nextDelay grows the backoff, capped at MaxDelay.
func nextDelay(current time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

// sleep waits for d or until ctx expires, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
