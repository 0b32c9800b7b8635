package conductor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/protocol"
	"github.com/roach88/ludus/internal/schedule"
	"github.com/roach88/ludus/internal/transport"
)

// peerScript programs one fake participant's behavior.
type peerScript struct {
	noAck       bool          // never acknowledge an invite
	ackErr      error         // fail the invite call with this error
	choice      protocol.Parity
	rawChoice   string        // overrides choice when set (invalid values)
	choiceErr   error         // fail the choice call with this error
	choiceDelay time.Duration // delay before answering a choice request
	noChoice    bool          // never answer a choice request
	respVersion string        // stamps every reply with a foreign protocol version
	choiceToken string        // forges the auth token on the choice reply only
}

// stamp applies the scripted reply forgeries to an outbound envelope.
func (s *peerScript) stamp(env protocol.Envelope) protocol.Envelope {
	if s.respVersion != "" {
		env.ProtocolVersion = s.respVersion
	}
	return env
}

// fakePeers is an in-process transport.Caller scripted per peer.
type fakePeers struct {
	mu             sync.Mutex
	peers          map[string]*peerScript
	choiceRequests map[string]int
	heartbeats     map[string]int
	notices        map[string][]protocol.Envelope
}

func newFakePeers(peers map[string]*peerScript) *fakePeers {
	return &fakePeers{
		peers:          peers,
		choiceRequests: make(map[string]int),
		heartbeats:     make(map[string]int),
		notices:        make(map[string][]protocol.Envelope),
	}
}

func (f *fakePeers) Call(ctx context.Context, peer string, env protocol.Envelope) (protocol.Envelope, error) {
	f.mu.Lock()
	script, ok := f.peers[peer]
	f.mu.Unlock()
	if !ok {
		return protocol.Envelope{}, protocol.NewError(protocol.CodeUnknownPeer, "no such peer "+peer)
	}

	sender := protocol.SenderID{Role: protocol.RolePlayer, ID: peer}
	switch env.Type {
	case protocol.TypeMatchInvite:
		if script.noAck {
			<-ctx.Done()
			return protocol.Envelope{}, ctx.Err()
		}
		if script.ackErr != nil {
			return protocol.Envelope{}, script.ackErr
		}
		return script.stamp(protocol.NewEnvelope(protocol.TypeMatchAccept, sender, env.ConversationID, "tok-"+peer,
			protocol.MarshalPayload(protocol.AcceptPayload{FixtureID: fixtureIDOf(env)}))), nil

	case protocol.TypeChoiceRequest:
		f.mu.Lock()
		f.choiceRequests[peer]++
		f.mu.Unlock()
		if script.noChoice {
			<-ctx.Done()
			return protocol.Envelope{}, ctx.Err()
		}
		if script.choiceDelay > 0 {
			select {
			case <-ctx.Done():
				return protocol.Envelope{}, ctx.Err()
			case <-time.After(script.choiceDelay):
			}
		}
		if script.choiceErr != nil {
			return protocol.Envelope{}, script.choiceErr
		}
		raw := string(script.choice)
		if script.rawChoice != "" {
			raw = script.rawChoice
		}
		token := "tok-" + peer
		if script.choiceToken != "" {
			token = script.choiceToken
		}
		return script.stamp(protocol.NewEnvelope(protocol.TypeChoiceResponse, sender, env.ConversationID, token,
			protocol.MarshalPayload(protocol.ChoiceResponsePayload{FixtureID: fixtureIDOf(env), Choice: raw}))), nil

	case protocol.TypeHeartbeat:
		f.mu.Lock()
		f.heartbeats[peer]++
		f.mu.Unlock()
		return protocol.NewEnvelope(protocol.TypeHeartbeatAck, sender, env.ConversationID, "tok-"+peer, nil), nil

	default:
		return protocol.Envelope{}, protocol.NewError(protocol.CodeInvalidState, "unexpected "+env.Type.String())
	}
}

func (f *fakePeers) Send(ctx context.Context, peer string, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices[peer] = append(f.notices[peer], env)
	return nil
}

func (f *fakePeers) choiceRequestCount(peer string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.choiceRequests[peer]
}

func (f *fakePeers) heartbeatCount(peer string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats[peer]
}

func (f *fakePeers) noticesFor(peer string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.notices[peer]...)
}

func fixtureIDOf(env protocol.Envelope) string {
	var p struct {
		FixtureID string `json:"fixture_id"`
	}
	_ = protocol.UnmarshalPayload(env, &p)
	return p.FixtureID
}

// recordingReporter collects reports, optionally failing first.
type recordingReporter struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts int
	reports  []ledger.Outcome
}

func (r *recordingReporter) Report(ctx context.Context, out ledger.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failures > 0 {
		r.failures--
		if r.err != nil {
			return r.err
		}
		return protocol.NewError(protocol.CodePeerUnavailable, "ledger busy")
	}
	r.reports = append(r.reports, out)
	return nil
}

func testFixture() schedule.Fixture {
	return schedule.Fixture{
		ID:           "r01m01",
		Round:        1,
		ParticipantA: "xavier",
		ParticipantB: "yvonne",
		Conductor:    "c1",
	}
}

// staticResolver maps fixed tokens to identities for the envelope gate.
type staticResolver map[string]protocol.SenderID

func (r staticResolver) Resolve(token string) (protocol.SenderID, bool) {
	id, ok := r[token]
	return id, ok
}

func testResolver() staticResolver {
	return staticResolver{
		"tok-xavier": {Role: protocol.RolePlayer, ID: "xavier"},
		"tok-yvonne": {Role: protocol.RolePlayer, ID: "yvonne"},
	}
}

func testConductor(peers *fakePeers, reporter Reporter, drawn int, opts ...Option) *Conductor {
	cfg := transport.Config{
		MaxAttempts:      3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         4 * time.Millisecond,
		Multiplier:       2.0,
		BreakerThreshold: 100,
		BreakerReset:     time.Minute,
	}
	client := transport.NewClient(peers, cfg, nil)
	base := []Option{
		WithTimeouts(Timeouts{Ack: 50 * time.Millisecond, Decision: 100 * time.Millisecond, Request: 50 * time.Millisecond}),
		WithRetry(cfg),
		WithDraw(func() (int, error) { return drawn, nil }),
		WithConversationGenerator(NewFixedGenerator("conv-test")),
	}
	return New("c1", client, reporter, testResolver(), append(base, opts...)...)
}

func TestRun_DecidedWin(t *testing.T) {
	// xavier declares even, yvonne odd, drawn value 8 (even): xavier wins.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)

	assert.Equal(t, StateComplete, m.State)
	assert.Equal(t, CompleteDecided, m.Complete)
	assert.Equal(t, ledger.WinA, m.Outcome.Kind)
	assert.Equal(t, 8, m.Outcome.DrawnValue)
	assert.Equal(t, "conv-test", m.Outcome.ConversationID)

	require.Len(t, reporter.reports, 1)
	assert.Equal(t, "r01m01", reporter.reports[0].FixtureID)

	// Both sides got a result notification naming the winner.
	for _, peer := range []string{"xavier", "yvonne"} {
		notices := peers.noticesFor(peer)
		require.Len(t, notices, 1, peer)
		assert.Equal(t, protocol.TypeMatchResult, notices[0].Type)
		var payload protocol.ResultPayload
		require.NoError(t, protocol.UnmarshalPayload(notices[0], &payload))
		assert.Equal(t, "xavier", payload.Winner)
	}
}

func TestRun_SameChoiceIsDraw(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityOdd},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 3)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.Draw, m.Outcome.Kind)
	assert.Equal(t, CompleteDecided, m.Complete)
}

func TestRun_AckTimeoutForfeits(t *testing.T) {
	// yvonne never acknowledges: forfeiture, xavier credited the win,
	// and the decision step is never entered for either side.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {noAck: true},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)

	assert.Equal(t, CompleteForfeited, m.Complete)
	assert.Equal(t, ledger.ForfeitB, m.Outcome.Kind)
	assert.Zero(t, m.Outcome.DrawnValue, "nothing is drawn for a forfeit")
	assert.Equal(t, 0, peers.choiceRequestCount("xavier"))
	assert.Equal(t, 0, peers.choiceRequestCount("yvonne"))

	// The non-responder gets a terminal timeout notice.
	notices := peers.noticesFor("yvonne")
	require.Len(t, notices, 1)
	require.Equal(t, protocol.TypeError, notices[0].Type)
	var payload protocol.ErrorPayload
	require.NoError(t, protocol.UnmarshalPayload(notices[0], &payload))
	assert.Equal(t, protocol.CodeAckTimeout, payload.Code)

	// The winner gets a result notice.
	winNotices := peers.noticesFor("xavier")
	require.Len(t, winNotices, 1)
	assert.Equal(t, protocol.TypeMatchResult, winNotices[0].Type)
}

func TestRun_DecisionTimeoutForfeits(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {noChoice: true},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.ForfeitA, m.Outcome.Kind)

	notices := peers.noticesFor("xavier")
	require.Len(t, notices, 1)
	var payload protocol.ErrorPayload
	require.NoError(t, protocol.UnmarshalPayload(notices[0], &payload))
	assert.Equal(t, protocol.CodeDecisionTimeout, payload.Code)
}

func TestRun_TerminalErrorForfeitsImmediately(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choiceErr: protocol.NewError(protocol.CodeAuthTokenInvalid, "credential revoked")},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.ForfeitB, m.Outcome.Kind)
	// Terminal error: exactly one choice attempt, no retries.
	assert.Equal(t, 1, peers.choiceRequestCount("yvonne"))
}

func TestRun_InvalidChoiceForfeits(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {rawChoice: "prime"},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.ForfeitA, m.Outcome.Kind)
}

func TestRun_StaleVersionReplyForfeits(t *testing.T) {
	// yvonne's replies are well-shaped but stamped with a foreign
	// protocol version; the envelope gate rejects her ack and her side
	// forfeits before any decision is collected.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd, respVersion: "99.0"},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, CompleteForfeited, m.Complete)
	assert.Equal(t, ledger.ForfeitB, m.Outcome.Kind)
	assert.Equal(t, 0, peers.choiceRequestCount("xavier"))

	notices := peers.noticesFor("yvonne")
	require.Len(t, notices, 1)
	require.Equal(t, protocol.TypeError, notices[0].Type)
	var payload protocol.ErrorPayload
	require.NoError(t, protocol.UnmarshalPayload(notices[0], &payload))
	assert.Equal(t, protocol.CodeVersionMismatch, payload.Code)
}

func TestRun_ForgedTokenChoiceForfeits(t *testing.T) {
	// yvonne acknowledges normally, then answers the choice request with
	// xavier's token. The token resolves to a different identity than the
	// claimed sender, so her side forfeits with no retry.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd, choiceToken: "tok-xavier"},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.ForfeitB, m.Outcome.Kind)
	assert.Equal(t, 1, peers.choiceRequestCount("yvonne"))

	notices := peers.noticesFor("yvonne")
	require.Len(t, notices, 1)
	var payload protocol.ErrorPayload
	require.NoError(t, protocol.UnmarshalPayload(notices[0], &payload))
	assert.Equal(t, protocol.CodeAuthTokenInvalid, payload.Code)
}

func TestRun_ProbesOpenCircuitBeforeInvite(t *testing.T) {
	// yvonne's circuit is open from an earlier exchange. Once the reset
	// window elapses the conductor probes her liveness before inviting,
	// the circuit closes, and the match proceeds to a decision.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd},
	})
	cfg := transport.Config{
		MaxAttempts:      1,
		BaseDelay:        time.Millisecond,
		MaxDelay:         4 * time.Millisecond,
		Multiplier:       2.0,
		BreakerThreshold: 1,
		BreakerReset:     5 * time.Millisecond,
	}
	client := transport.NewClient(peers, cfg, nil)

	// Trip yvonne's breaker with a call her script rejects.
	_, err := client.Call(context.Background(), "yvonne",
		protocol.NewEnvelope(protocol.TypeRoundAnnounce,
			protocol.SenderID{Role: protocol.RoleConductor, ID: "c1"}, "conv-trip", "tok-c1", nil))
	require.Error(t, err)
	require.Equal(t, transport.BreakerOpen, client.BreakerState("yvonne"))

	time.Sleep(10 * time.Millisecond)

	reporter := &recordingReporter{}
	c := New("c1", client, reporter, testResolver(),
		WithTimeouts(Timeouts{Ack: 50 * time.Millisecond, Decision: 100 * time.Millisecond, Request: 50 * time.Millisecond}),
		WithRetry(cfg),
		WithDraw(func() (int, error) { return 8, nil }),
		WithConversationGenerator(NewFixedGenerator("conv-probe")),
	)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, CompleteDecided, m.Complete)
	assert.Equal(t, 1, peers.heartbeatCount("yvonne"))
	assert.Equal(t, transport.BreakerClosed, client.BreakerState("yvonne"))
	assert.Equal(t, 0, peers.heartbeatCount("xavier"), "closed circuits are not probed")
}

func TestRun_BothSilentIsDoubleForfeit(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {noAck: true},
		"yvonne": {noAck: true},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Equal(t, ledger.DoubleForfeit, m.Outcome.Kind)
	assert.Empty(t, m.Outcome.Winner())
}

func TestRun_SlowPeerDoesNotSerializeTimeouts(t *testing.T) {
	// Both sides block until their deadlines. If the waits were
	// sequential the run would take two ack windows; concurrent waits
	// finish in roughly one.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {noAck: true},
		"yvonne": {noAck: true},
	})
	reporter := &recordingReporter{}
	c := testConductor(peers, reporter, 8)

	start := time.Now()
	_, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 90*time.Millisecond, "ack waits must run concurrently")
}

func TestRun_ReportRetriedUntilApplied(t *testing.T) {
	// Report fails twice with a retryable error, succeeds on the third
	// attempt: exactly one applied report, inside the 3-attempt budget.
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{failures: 2}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.NoError(t, err)

	assert.Equal(t, 3, reporter.attempts)
	require.Len(t, reporter.reports, 1)
	assert.Equal(t, ledger.WinA, reporter.reports[0].Kind)
	assert.Equal(t, 2, m.RetryCount)
}

func TestRun_ReportExhaustionSurfaces(t *testing.T) {
	peers := newFakePeers(map[string]*peerScript{
		"xavier": {choice: protocol.ParityEven},
		"yvonne": {choice: protocol.ParityOdd},
	})
	reporter := &recordingReporter{failures: 10}
	c := testConductor(peers, reporter, 8)

	m, err := c.Run(context.Background(), testFixture())
	require.Error(t, err)
	assert.Equal(t, StateComplete, m.State, "the match itself still completed")
	assert.Empty(t, reporter.reports)
}
