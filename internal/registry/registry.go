// Package registry is the credential boundary: it enrolls participants,
// mints opaque auth tokens, and resolves tokens back to identities for
// envelope validation.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ludus/internal/protocol"
)

// Registration is one enrolled identity and its credential.
type Registration struct {
	Identity protocol.SenderID
	Token    string
}

// Registry is the in-process credential store. Single-writer: all
// mutation is serialized behind the mutex; it is shared by every
// component that validates envelopes.
type Registry struct {
	mu       sync.Mutex
	byToken  map[string]protocol.SenderID
	byName   map[string]string // normalized name -> token
	order    []string          // registration order of participant names
	mintFunc func() string
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMint overrides token minting (tests use fixed tokens).
func WithMint(mint func() string) Option {
	return func(r *Registry) { r.mintFunc = mint }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates an empty registry. Tokens default to random UUIDs.
func New(opts ...Option) *Registry {
	r := &Registry{
		byToken:  make(map[string]protocol.SenderID),
		byName:   make(map[string]string),
		mintFunc: func() string { return uuid.NewString() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register enrolls an identity and mints its token. Names are normalized
// to NFC before comparison so visually identical names cannot register
// twice under different Unicode encodings.
func (r *Registry) Register(identity protocol.SenderID) (Registration, error) {
	if identity.Role == "" || identity.ID == "" {
		return Registration{}, protocol.NewError(protocol.CodeMalformedEnvelope, "identity incomplete")
	}
	identity.ID = norm.NFC.String(identity.ID)
	key := identity.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[key]; exists {
		return Registration{}, protocol.NewError(protocol.CodeDuplicateRegistration,
			fmt.Sprintf("%s is already registered", key))
	}

	token := r.mintFunc()
	r.byToken[token] = identity
	r.byName[key] = token
	if identity.Role == protocol.RolePlayer {
		r.order = append(r.order, identity.ID)
	}

	r.logger.Info("peer registered", "identity", key)
	return Registration{Identity: identity, Token: token}, nil
}

// Resolve implements protocol.CredentialResolver.
func (r *Registry) Resolve(token string) (protocol.SenderID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	return id, ok
}

// Revoke invalidates a token. Unknown tokens are a no-op.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byToken[token]; ok {
		delete(r.byToken, token)
		delete(r.byName, id.String())
	}
}

// Players returns registered player names in registration order - the
// order the ledger uses as its final tie-break.
func (r *Registry) Players() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
