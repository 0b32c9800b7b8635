package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ludus/internal/protocol"
)

// scriptedCaller returns the queued results in order; the last result
// repeats once the script is exhausted.
type scriptedCaller struct {
	mu      sync.Mutex
	results []callResult
	calls   int
}

type callResult struct {
	resp protocol.Envelope
	err  error
}

func (s *scriptedCaller) Call(ctx context.Context, peer string, env protocol.Envelope) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	return r.resp, r.err
}

func (s *scriptedCaller) Send(ctx context.Context, peer string, env protocol.Envelope) error {
	_, err := s.Call(ctx, peer, env)
	return err
}

func (s *scriptedCaller) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Multiplier:       2.0,
		BreakerThreshold: 10,
		BreakerReset:     time.Minute,
	}
}

func ackEnvelope() protocol.Envelope {
	return protocol.NewEnvelope(
		protocol.TypeResultReportAck,
		protocol.SenderID{Role: protocol.RoleLeague, ID: "league"},
		"conv-1", "tok", nil,
	)
}

func TestClient_RetryableSucceedsWithinBudget(t *testing.T) {
	// Two retryable failures, then success on the third attempt.
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "busy")},
		{err: protocol.NewError(protocol.CodePeerServiceUnavailable, "restarting")},
		{resp: ackEnvelope()},
	}}
	c := NewClient(caller, fastConfig(), nil)

	resp, err := c.Call(context.Background(), "league", ackEnvelope())
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeResultReportAck, resp.Type)
	assert.Equal(t, 3, caller.callCount())
}

func TestClient_TerminalNotRetried(t *testing.T) {
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodeAuthTokenInvalid, "bad token")},
	}}
	c := NewClient(caller, fastConfig(), nil)

	_, err := c.Call(context.Background(), "bob", ackEnvelope())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeAuthTokenInvalid, protocol.CodeOf(err))
	assert.Equal(t, 1, caller.callCount(), "terminal errors get exactly one attempt")
}

func TestClient_ExhaustionSurfacesLastError(t *testing.T) {
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodeRateLimited, "slow down")},
	}}
	c := NewClient(caller, fastConfig(), nil)

	_, err := c.Call(context.Background(), "bob", ackEnvelope())
	require.Error(t, err)
	assert.Equal(t, 3, caller.callCount())
	assert.Equal(t, protocol.CodeRateLimited, protocol.CodeOf(err))
}

func TestClient_DeadlineCutsBackoffShort(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = 500 * time.Millisecond
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "busy")},
	}}
	c := NewClient(caller, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Call(ctx, "bob", ackEnvelope())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, protocol.IsTimeout(err))
	assert.Less(t, time.Since(start), 200*time.Millisecond, "retry must not outlive the deadline")
}

func TestClient_BreakerFailsFast(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerThreshold = 2
	cfg.MaxAttempts = 1
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "down")},
	}}
	c := NewClient(caller, cfg, nil)

	ctx := context.Background()
	_, _ = c.Call(ctx, "bob", ackEnvelope())
	_, _ = c.Call(ctx, "bob", ackEnvelope())
	require.Equal(t, BreakerOpen, c.BreakerState("bob"))

	// Circuit open: no wire attempt is made.
	before := caller.callCount()
	_, err := c.Call(ctx, "bob", ackEnvelope())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeBreakerOpen, protocol.CodeOf(err))
	assert.Equal(t, before, caller.callCount())

	// Breakers are per peer key.
	assert.Equal(t, BreakerClosed, c.BreakerState("carol"))
}

func TestClient_HeartbeatProbeClosesBreaker(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = 5 * time.Millisecond
	cfg.MaxAttempts = 1
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "down")},
		{err: protocol.NewError(protocol.CodePeerUnavailable, "down")},
		{resp: protocol.NewEnvelope(
			protocol.TypeHeartbeatAck,
			protocol.SenderID{Role: protocol.RolePlayer, ID: "bob"},
			"conv-hb", "tok", nil,
		)},
	}}
	c := NewClient(caller, cfg, nil)

	ctx := context.Background()
	_, _ = c.Call(ctx, "bob", ackEnvelope())
	_, _ = c.Call(ctx, "bob", ackEnvelope())
	require.Equal(t, BreakerOpen, c.BreakerState("bob"))

	time.Sleep(10 * time.Millisecond)

	sender := protocol.SenderID{Role: protocol.RoleConductor, ID: "c1"}
	require.NoError(t, c.Heartbeat(ctx, "bob", sender, "tok"))
	assert.Equal(t, BreakerClosed, c.BreakerState("bob"))
}

func TestClient_HeartbeatFailureReopens(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerThreshold = 1
	cfg.BreakerReset = time.Millisecond
	cfg.MaxAttempts = 1
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "down")},
	}}
	c := NewClient(caller, cfg, nil)

	ctx := context.Background()
	_, _ = c.Call(ctx, "bob", ackEnvelope())
	require.Equal(t, BreakerOpen, c.BreakerState("bob"))

	time.Sleep(5 * time.Millisecond)

	sender := protocol.SenderID{Role: protocol.RoleConductor, ID: "c1"}
	err := c.Heartbeat(ctx, "bob", sender, "tok")
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, c.BreakerState("bob"))
}

func TestClient_SendBestEffort(t *testing.T) {
	caller := &scriptedCaller{results: []callResult{
		{err: protocol.NewError(protocol.CodePeerUnavailable, "down")},
	}}
	c := NewClient(caller, fastConfig(), nil)

	err := c.Send(context.Background(), "bob", ackEnvelope())
	require.Error(t, err)
	assert.Equal(t, 1, caller.callCount(), "send is never retried")
}
