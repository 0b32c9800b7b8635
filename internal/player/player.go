// Package player implements an in-process tournament participant. It
// validates inbound envelopes, acknowledges invites, answers choice
// requests from a pluggable strategy, and records the results it is
// told about. The CLI runs auto-playing participants on top of it; the
// scenario harness scripts its failure modes.
package player

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/roach88/ludus/internal/protocol"
)

// Strategy decides the parity a player declares for a fixture.
type Strategy func(fixtureID string) protocol.Parity

// Fixed always declares the same parity.
func Fixed(p protocol.Parity) Strategy {
	return func(string) protocol.Parity { return p }
}

// Random declares uniformly at random.
func Random() Strategy {
	return func(string) protocol.Parity {
		n, err := rand.Int(rand.Reader, big.NewInt(2))
		if err != nil || n.Int64() == 0 {
			return protocol.ParityEven
		}
		return protocol.ParityOdd
	}
}

// Player is one participant endpoint. Handle is its transport handler;
// all other methods are safe to call concurrently with it.
type Player struct {
	id        string
	token     string
	validator *protocol.Validator
	strategy  Strategy
	delay     time.Duration
	logger    *slog.Logger

	silentInvite bool
	silentChoice bool
	choiceErr    error

	mu      sync.Mutex
	results []protocol.ResultPayload
	notices []protocol.ErrorPayload
}

// Option configures a Player.
type Option func(*Player)

// WithStrategy overrides the default random strategy.
func WithStrategy(s Strategy) Option {
	return func(p *Player) { p.strategy = s }
}

// WithDelay inserts a pause before every reply.
func WithDelay(d time.Duration) Option {
	return func(p *Player) { p.delay = d }
}

// WithSilentInvite makes the player never acknowledge invites.
func WithSilentInvite() Option {
	return func(p *Player) { p.silentInvite = true }
}

// WithSilentChoice makes the player never answer choice requests.
func WithSilentChoice() Option {
	return func(p *Player) { p.silentChoice = true }
}

// WithChoiceError makes the player answer choice requests with the
// given failure instead of a parity.
func WithChoiceError(err error) Option {
	return func(p *Player) { p.choiceErr = err }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) { p.logger = logger }
}

// New creates a player that validates inbound traffic against the given
// credential resolver. Token is the credential stamped on its replies.
func New(id, token string, resolver protocol.CredentialResolver, opts ...Option) *Player {
	p := &Player{
		id:        id,
		token:     token,
		validator: protocol.NewValidator(resolver),
		strategy:  Random(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the player's identifier.
func (p *Player) ID() string { return p.id }

func (p *Player) sender() protocol.SenderID {
	return protocol.SenderID{Role: protocol.RolePlayer, ID: p.id}
}

// Handle processes one inbound envelope. Implements transport.Handler.
func (p *Player) Handle(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	if _, err := p.validator.Validate(env); err != nil {
		p.logger.Warn("rejected envelope", "player", p.id, "error", err)
		return protocol.Envelope{}, err
	}

	switch env.Type {
	case protocol.TypeMatchInvite:
		return p.handleInvite(ctx, env)
	case protocol.TypeChoiceRequest:
		return p.handleChoiceRequest(ctx, env)
	case protocol.TypeMatchResult:
		return p.handleResult(env)
	case protocol.TypeError:
		return p.handleError(env)
	case protocol.TypeHeartbeat:
		return protocol.NewEnvelope(protocol.TypeHeartbeatAck, p.sender(), env.ConversationID, p.token, nil), nil
	default:
		return protocol.Envelope{}, protocol.NewError(protocol.CodeInvalidState,
			fmt.Sprintf("player %s cannot handle %s", p.id, env.Type))
	}
}

func (p *Player) handleInvite(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	if p.silentInvite {
		return hold(ctx)
	}
	if err := p.pause(ctx); err != nil {
		return protocol.Envelope{}, err
	}

	var invite protocol.InvitePayload
	if err := protocol.UnmarshalPayload(env, &invite); err != nil {
		return protocol.Envelope{}, err
	}
	p.logger.Info("invite accepted",
		"player", p.id,
		"fixture_id", invite.FixtureID,
		"opponent", invite.Opponent,
	)
	return protocol.NewEnvelope(
		protocol.TypeMatchAccept, p.sender(), env.ConversationID, p.token,
		protocol.MarshalPayload(protocol.AcceptPayload{FixtureID: invite.FixtureID}),
	), nil
}

func (p *Player) handleChoiceRequest(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	if p.silentChoice {
		return hold(ctx)
	}
	if p.choiceErr != nil {
		return protocol.Envelope{}, p.choiceErr
	}
	if err := p.pause(ctx); err != nil {
		return protocol.Envelope{}, err
	}

	var req protocol.ChoiceRequestPayload
	if err := protocol.UnmarshalPayload(env, &req); err != nil {
		return protocol.Envelope{}, err
	}
	choice := p.strategy(req.FixtureID)
	p.logger.Info("choice declared",
		"player", p.id,
		"fixture_id", req.FixtureID,
		"choice", string(choice),
	)
	return protocol.NewEnvelope(
		protocol.TypeChoiceResponse, p.sender(), env.ConversationID, p.token,
		protocol.MarshalPayload(protocol.ChoiceResponsePayload{
			FixtureID: req.FixtureID,
			Choice:    string(choice),
		}),
	), nil
}

func (p *Player) handleResult(env protocol.Envelope) (protocol.Envelope, error) {
	var result protocol.ResultPayload
	if err := protocol.UnmarshalPayload(env, &result); err != nil {
		return protocol.Envelope{}, err
	}
	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()
	return protocol.NewEnvelope(protocol.TypeMatchResultAck, p.sender(), env.ConversationID, p.token, nil), nil
}

func (p *Player) handleError(env protocol.Envelope) (protocol.Envelope, error) {
	var notice protocol.ErrorPayload
	if err := protocol.UnmarshalPayload(env, &notice); err != nil {
		return protocol.Envelope{}, err
	}
	p.mu.Lock()
	p.notices = append(p.notices, notice)
	p.mu.Unlock()
	p.logger.Warn("error notice",
		"player", p.id,
		"code", string(notice.Code),
		"fixture_id", notice.Fixture,
	)
	return protocol.Envelope{}, nil
}

// Results returns the result notifications received so far.
func (p *Player) Results() []protocol.ResultPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.ResultPayload(nil), p.results...)
}

// Notices returns the error notices received so far.
func (p *Player) Notices() []protocol.ErrorPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.ErrorPayload(nil), p.notices...)
}

func (p *Player) pause(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// hold blocks until the caller gives up. Models a peer that went dark.
func hold(ctx context.Context) (protocol.Envelope, error) {
	<-ctx.Done()
	return protocol.Envelope{}, ctx.Err()
}
