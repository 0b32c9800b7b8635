package conductor

import (
	"sync"

	"github.com/google/uuid"
)

// ConversationGenerator mints the correlation key for one match exchange.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type ConversationGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-sortable UUIDv7 conversation IDs, so a
// trace of concurrent matches sorts by creation time.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined conversation IDs in order, for
// deterministic tests and golden comparisons. Wraps around when the
// sequence is exhausted.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator cycling through ids.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.idx%len(g.ids)]
	g.idx++
	return id
}
