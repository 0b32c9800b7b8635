package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/protocol"
	"github.com/roach88/ludus/internal/schedule"
	"github.com/roach88/ludus/internal/transport"
)

// State is the lifecycle position of one contest instance.
type State int

const (
	// StateAwaitingParticipants: invites sent, acknowledgments pending.
	StateAwaitingParticipants State = iota + 1
	// StateCollectingDecisions: both sides acknowledged, choices pending.
	StateCollectingDecisions
	// StateResolving: both choices in hand, drawing and deciding.
	StateResolving
	// StateComplete is terminal; no transitions leave it.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateAwaitingParticipants:
		return "awaiting_participants"
	case StateCollectingDecisions:
		return "collecting_decisions"
	case StateResolving:
		return "resolving"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CompleteKind distinguishes the two terminal variants.
type CompleteKind int

const (
	// CompleteDecided: a winner or draw was computed from real choices.
	CompleteDecided CompleteKind = iota + 1
	// CompleteForfeited: a technical loss was awarded on timeout or
	// terminal error.
	CompleteForfeited
)

// Match is the runtime state for one fixture. Owned exclusively by the
// conductor goroutine running it; no other component mutates it.
type Match struct {
	Fixture        schedule.Fixture
	ConversationID string
	State          State
	Complete       CompleteKind
	Outcome        ledger.Outcome
	// Deadline is the active timeout instant for the current phase.
	Deadline time.Time
	// RetryCount counts report retries for diagnostics.
	RetryCount int
}

// Reporter delivers a terminal outcome to the standings ledger. The
// conductor retries retryable report failures; the ledger's idempotency
// on fixture ID makes replays safe.
type Reporter interface {
	Report(ctx context.Context, out ledger.Outcome) error
}

// Timeouts holds the per-phase deadlines.
type Timeouts struct {
	// Ack bounds the invite acknowledgment wait.
	Ack time.Duration
	// Decision bounds the choice collection wait.
	Decision time.Duration
	// Request bounds generic one-shot requests (notifications, probes).
	Request time.Duration
}

// DefaultTimeouts returns the standard deadlines scaled by one time-unit:
// ack 5 units, decision 30, generic request 10.
func DefaultTimeouts(unit time.Duration) Timeouts {
	return Timeouts{
		Ack:      5 * unit,
		Decision: 30 * unit,
		Request:  10 * unit,
	}
}

// Conductor drives contest instances through their lifecycle. One
// conductor runs many fixtures, each in its own goroutine via Run.
type Conductor struct {
	id        string
	token     string
	client    *transport.Client
	reporter  Reporter
	validator *protocol.Validator
	timeouts  Timeouts
	retry     transport.Config
	draw      func() (int, error)
	convGen   ConversationGenerator
	logger    *slog.Logger
}

// Option configures a Conductor.
type Option func(*Conductor)

// WithTimeouts overrides the phase deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(c *Conductor) { c.timeouts = t }
}

// WithRetry overrides the report retry policy.
func WithRetry(cfg transport.Config) Option {
	return func(c *Conductor) { c.retry = cfg }
}

// WithDraw overrides the drawn-value source (tests fix the draw).
func WithDraw(draw func() (int, error)) Option {
	return func(c *Conductor) { c.draw = draw }
}

// WithConversationGenerator overrides conversation ID minting.
func WithConversationGenerator(g ConversationGenerator) Option {
	return func(c *Conductor) { c.convGen = g }
}

// WithCredential sets the auth token stamped on outbound envelopes.
func WithCredential(token string) Option {
	return func(c *Conductor) { c.token = token }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conductor) { c.logger = logger }
}

// New creates a conductor over the given resilient transport client.
// Every participant reply passes the envelope gate backed by creds
// before its content is consumed.
func New(id string, client *transport.Client, reporter Reporter, creds protocol.CredentialResolver, opts ...Option) *Conductor {
	c := &Conductor{
		id:        id,
		client:    client,
		reporter:  reporter,
		validator: protocol.NewValidator(creds),
		timeouts:  DefaultTimeouts(time.Second),
		retry:     transport.DefaultConfig(time.Second),
		draw:      DrawValue,
		convGen:   UUIDv7Generator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the conductor's identifier.
func (c *Conductor) ID() string { return c.id }

func (c *Conductor) sender() protocol.SenderID {
	return protocol.SenderID{Role: protocol.RoleConductor, ID: c.id}
}

// Run conducts one fixture to completion: invite, acknowledge, collect
// choices, resolve, notify, report. Returns the completed match, or an
// error if the outcome could not be produced or durably reported - the
// coordinator surfaces that as a round stall.
//
// Both participant interactions in every phase run concurrently under
// independent deadlines; one slow peer never delays the other's timeout.
func (c *Conductor) Run(ctx context.Context, fx schedule.Fixture) (*Match, error) {
	m := &Match{
		Fixture:        fx,
		ConversationID: c.convGen.Generate(),
		State:          StateAwaitingParticipants,
	}

	c.logger.Info("fixture started",
		"fixture_id", fx.ID,
		"conversation_id", m.ConversationID,
		"round", fx.Round,
		"participant_a", fx.ParticipantA,
		"participant_b", fx.ParticipantB,
		"conductor", c.id,
	)

	c.probeOpenCircuits(ctx, fx)

	errA, errB := c.collectAcks(ctx, m)

	var choiceA, choiceB protocol.Parity
	if errA == nil && errB == nil {
		m.State = StateCollectingDecisions
		choiceA, choiceB, errA, errB = c.collectChoices(ctx, m)
	}

	out := ledger.Outcome{
		FixtureID:      fx.ID,
		Round:          fx.Round,
		ParticipantA:   fx.ParticipantA,
		ParticipantB:   fx.ParticipantB,
		ChoiceA:        choiceA,
		ChoiceB:        choiceB,
		ConversationID: m.ConversationID,
	}

	switch {
	case errA != nil && errB != nil:
		out.Kind = ledger.DoubleForfeit
	case errA != nil:
		out.Kind = ledger.ForfeitA
	case errB != nil:
		out.Kind = ledger.ForfeitB
	default:
		m.State = StateResolving
		drawn, err := c.draw()
		if err != nil {
			return m, fmt.Errorf("fixture %s: %w", fx.ID, err)
		}
		out.DrawnValue = drawn
		out.Kind = Resolve(choiceA, choiceB, protocol.ParityOf(drawn))
	}

	m.State = StateComplete
	m.Outcome = out
	if out.Kind.Forfeited() {
		m.Complete = CompleteForfeited
	} else {
		m.Complete = CompleteDecided
	}

	c.logger.Info("outcome resolved",
		"fixture_id", fx.ID,
		"conversation_id", m.ConversationID,
		"outcome", out.Kind.String(),
		"drawn_value", out.DrawnValue,
		"choice_a", string(out.ChoiceA),
		"choice_b", string(out.ChoiceB),
	)

	c.notify(ctx, m, errA, errB)

	if err := c.report(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}

// probeOpenCircuits sends a liveness probe to any participant whose
// circuit is open before dispatch, so a peer that recovered since its
// last fixture plays instead of failing fast at the invite.
func (c *Conductor) probeOpenCircuits(ctx context.Context, fx schedule.Fixture) {
	for _, peer := range []string{fx.ParticipantA, fx.ParticipantB} {
		if c.client.BreakerState(peer) != transport.BreakerOpen {
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, c.timeouts.Request)
		err := c.client.Heartbeat(hctx, peer, c.sender(), c.token)
		cancel()
		if err != nil {
			c.logger.Warn("liveness probe failed",
				"fixture_id", fx.ID,
				"participant", peer,
				"error", err,
			)
			continue
		}
		c.logger.Info("liveness probe closed circuit",
			"fixture_id", fx.ID,
			"participant", peer,
		)
	}
}

// validateReply runs the envelope gate on a participant reply and pins
// the sender to the peer the request went to. Gate failures are terminal
// and forfeit the replying side.
func (c *Conductor) validateReply(m *Match, peer string, resp protocol.Envelope) error {
	if _, err := c.validator.Validate(resp); err != nil {
		c.logger.Warn("reply rejected by envelope gate",
			"fixture_id", m.Fixture.ID,
			"conversation_id", m.ConversationID,
			"participant", peer,
			"error", err,
		)
		return fmt.Errorf("reply from %s: %w", peer, err)
	}
	want := protocol.SenderID{Role: protocol.RolePlayer, ID: peer}
	if resp.Sender != want {
		return protocol.NewError(protocol.CodeAuthTokenInvalid,
			fmt.Sprintf("reply claims sender %s, want %s", resp.Sender, want)).
			WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
	}
	return nil
}

// collectAcks invites both participants and awaits their acknowledgments
// concurrently, each under its own ack deadline. Ack timeouts are a hard
// boundary: the side forfeits, nothing is retried at the deadline level.
func (c *Conductor) collectAcks(ctx context.Context, m *Match) (errA, errB error) {
	m.Deadline = time.Now().Add(c.timeouts.Ack)

	type ackResult struct {
		side int
		err  error
	}
	results := make(chan ackResult, 2)

	sides := [2]struct{ peer, opponent string }{
		{m.Fixture.ParticipantA, m.Fixture.ParticipantB},
		{m.Fixture.ParticipantB, m.Fixture.ParticipantA},
	}
	for i, s := range sides {
		go func(side int, peer, opponent string) {
			results <- ackResult{side, c.inviteAndAwaitAck(ctx, m, peer, opponent)}
		}(i, s.peer, s.opponent)
	}

	var errs [2]error
	for range sides {
		r := <-results
		errs[r.side] = r.err
	}
	return errs[0], errs[1]
}

func (c *Conductor) inviteAndAwaitAck(ctx context.Context, m *Match, peer, opponent string) error {
	actx, cancel := context.WithTimeout(ctx, c.timeouts.Ack)
	defer cancel()

	invite := protocol.NewEnvelope(
		protocol.TypeMatchInvite, c.sender(), m.ConversationID, c.token,
		protocol.MarshalPayload(protocol.InvitePayload{
			FixtureID: m.Fixture.ID,
			Round:     m.Fixture.Round,
			Opponent:  opponent,
		}),
	)

	resp, err := c.client.Call(actx, peer, invite)
	if err != nil {
		if protocol.IsTimeout(err) {
			err = protocol.NewError(protocol.CodeAckTimeout,
				fmt.Sprintf("%s did not acknowledge within %s", peer, c.timeouts.Ack)).
				WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
		}
		c.logger.Warn("acknowledgment failed",
			"fixture_id", m.Fixture.ID,
			"conversation_id", m.ConversationID,
			"participant", peer,
			"error", err,
		)
		return err
	}
	if err := c.validateReply(m, peer, resp); err != nil {
		return err
	}
	if resp.Type != protocol.TypeMatchAccept {
		return protocol.NewError(protocol.CodeMalformedEnvelope,
			fmt.Sprintf("expected MATCH_ACCEPT from %s, got %s", peer, resp.Type)).
			WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
	}
	if resp.ConversationID != m.ConversationID {
		return protocol.NewError(protocol.CodeConversationMismatch,
			fmt.Sprintf("ack from %s correlates to %q", peer, resp.ConversationID)).
			WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
	}
	return nil
}

// collectChoices requests both declared values concurrently, each under
// its own decision deadline. The transport client may retry retryable
// failures, but only inside the original deadline window.
func (c *Conductor) collectChoices(ctx context.Context, m *Match) (choiceA, choiceB protocol.Parity, errA, errB error) {
	m.Deadline = time.Now().Add(c.timeouts.Decision)

	type choiceResult struct {
		side   int
		choice protocol.Parity
		err    error
	}
	results := make(chan choiceResult, 2)

	peers := [2]string{m.Fixture.ParticipantA, m.Fixture.ParticipantB}
	for i, peer := range peers {
		go func(side int, peer string) {
			choice, err := c.requestChoice(ctx, m, peer)
			results <- choiceResult{side, choice, err}
		}(i, peer)
	}

	var choices [2]protocol.Parity
	var errs [2]error
	for range peers {
		r := <-results
		choices[r.side], errs[r.side] = r.choice, r.err
	}
	return choices[0], choices[1], errs[0], errs[1]
}

func (c *Conductor) requestChoice(ctx context.Context, m *Match, peer string) (protocol.Parity, error) {
	dctx, cancel := context.WithTimeout(ctx, c.timeouts.Decision)
	defer cancel()

	req := protocol.NewEnvelope(
		protocol.TypeChoiceRequest, c.sender(), m.ConversationID, c.token,
		protocol.MarshalPayload(protocol.ChoiceRequestPayload{FixtureID: m.Fixture.ID}),
	)

	resp, err := c.client.Call(dctx, peer, req)
	if err != nil {
		if protocol.IsTimeout(err) {
			err = protocol.NewError(protocol.CodeDecisionTimeout,
				fmt.Sprintf("%s did not decide within %s", peer, c.timeouts.Decision)).
				WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
		}
		c.logger.Warn("decision collection failed",
			"fixture_id", m.Fixture.ID,
			"conversation_id", m.ConversationID,
			"participant", peer,
			"error", err,
		)
		return "", err
	}
	if err := c.validateReply(m, peer, resp); err != nil {
		return "", err
	}
	if resp.Type != protocol.TypeChoiceResponse {
		return "", protocol.NewError(protocol.CodeMalformedEnvelope,
			fmt.Sprintf("expected CHOICE_RESPONSE from %s, got %s", peer, resp.Type)).
			WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
	}
	if resp.ConversationID != m.ConversationID {
		return "", protocol.NewError(protocol.CodeConversationMismatch,
			fmt.Sprintf("choice from %s correlates to %q", peer, resp.ConversationID)).
			WithFixture(m.Fixture.ID).WithConversation(m.ConversationID)
	}

	var payload protocol.ChoiceResponsePayload
	if err := protocol.UnmarshalPayload(resp, &payload); err != nil {
		return "", err
	}
	choice, err := protocol.ParseParity(payload.Choice)
	if err != nil {
		return "", fmt.Errorf("choice from %s: %w", peer, err)
	}

	c.logger.Info("decision received",
		"fixture_id", m.Fixture.ID,
		"conversation_id", m.ConversationID,
		"participant", peer,
		"choice", string(choice),
	)
	return choice, nil
}

// notify delivers the final outcome to both participants, best effort:
// failures are logged, never retried, and never block reporting.
// A side that forfeited on error receives the terminal-error notice
// instead of a plain result.
func (c *Conductor) notify(ctx context.Context, m *Match, errA, errB error) {
	nctx, cancel := context.WithTimeout(ctx, c.timeouts.Request)
	defer cancel()

	result := protocol.ResultPayload{
		FixtureID:  m.Fixture.ID,
		Round:      m.Fixture.Round,
		Outcome:    m.Outcome.Kind.String(),
		Winner:     m.Outcome.Winner(),
		DrawnValue: m.Outcome.DrawnValue,
	}

	sides := [2]struct {
		peer string
		err  error
	}{
		{m.Fixture.ParticipantA, errA},
		{m.Fixture.ParticipantB, errB},
	}
	for _, s := range sides {
		var env protocol.Envelope
		if s.err != nil {
			env = protocol.NewEnvelope(
				protocol.TypeError, c.sender(), m.ConversationID, c.token,
				protocol.MarshalPayload(protocol.ErrorPayload{
					Code:    protocol.CodeOf(s.err),
					Message: s.err.Error(),
					Fixture: m.Fixture.ID,
				}),
			)
		} else {
			env = protocol.NewEnvelope(
				protocol.TypeMatchResult, c.sender(), m.ConversationID, c.token,
				protocol.MarshalPayload(result),
			)
		}
		if err := c.client.Send(nctx, s.peer, env); err != nil {
			c.logger.Warn("result notification failed",
				"fixture_id", m.Fixture.ID,
				"conversation_id", m.ConversationID,
				"participant", s.peer,
				"error", err,
			)
		}
	}
}

// report delivers the outcome to the ledger, retrying retryable failures
// with backoff. Losing a report would corrupt tournament state, so this
// is the one step with its own retry budget; ledger idempotency makes a
// duplicate delivery harmless.
func (c *Conductor) report(ctx context.Context, m *Match) error {
	delay := c.retry.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err := c.reporter.Report(ctx, m.Outcome)
		if err == nil {
			c.logger.Info("report applied",
				"fixture_id", m.Fixture.ID,
				"conversation_id", m.ConversationID,
				"attempt", attempt,
			)
			return nil
		}
		lastErr = err
		if !protocol.IsRetryable(err) {
			return fmt.Errorf("report fixture %s: %w", m.Fixture.ID, err)
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		m.RetryCount++
		c.logger.Warn("report failed, backing off",
			"fixture_id", m.Fixture.ID,
			"conversation_id", m.ConversationID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("report fixture %s: %w", m.Fixture.ID, err)
		}
		delay = time.Duration(float64(delay) * c.retry.Multiplier)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return fmt.Errorf("report fixture %s exhausted %d attempts: %w", m.Fixture.ID, c.retry.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
