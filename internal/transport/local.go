package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ludus/internal/protocol"
)

// Handler processes one inbound envelope and produces the reply.
type Handler func(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error)

// Local is an in-process Caller: envelopes are routed to registered
// handlers by peer name. The CLI's simulated participants and the
// scenario harness both ride on it; production deployments substitute a
// network-backed Caller.
type Local struct {
	mu    sync.Mutex
	peers map[string]Handler
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{peers: make(map[string]Handler)}
}

// Register attaches a handler for a peer name, replacing any previous
// registration.
func (l *Local) Register(peer string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[peer] = h
}

// Deregister removes a peer, making it unreachable.
func (l *Local) Deregister(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, peer)
}

// Call dispatches to the peer's handler and awaits its reply. The
// handler runs in its own goroutine so a slow peer is cut off by the
// caller's context rather than holding the call hostage.
func (l *Local) Call(ctx context.Context, peer string, env protocol.Envelope) (protocol.Envelope, error) {
	h, err := l.handler(peer)
	if err != nil {
		return protocol.Envelope{}, err
	}

	type reply struct {
		env protocol.Envelope
		err error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := h(ctx, env)
		done <- reply{resp, err}
	}()

	select {
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	case r := <-done:
		return r.env, r.err
	}
}

// Send dispatches without awaiting the reply envelope. Handler errors
// still surface so callers can log them.
func (l *Local) Send(ctx context.Context, peer string, env protocol.Envelope) error {
	h, err := l.handler(peer)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := h(ctx, env)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (l *Local) handler(peer string) (Handler, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.peers[peer]
	if !ok {
		return nil, protocol.NewError(protocol.CodeEndpointUnreachable,
			fmt.Sprintf("no endpoint registered for %s", peer))
	}
	return h, nil
}
