package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/ludus/internal/protocol"
)

// OutcomeKind is the terminal result of one contest.
type OutcomeKind int

const (
	// WinA: participant A's declared parity matched the drawn value.
	WinA OutcomeKind = iota + 1
	// WinB: participant B's declared parity matched the drawn value.
	WinB
	// Draw: both participants declared the same parity.
	Draw
	// ForfeitA: A forfeited (timeout or terminal error); B is credited a win.
	ForfeitA
	// ForfeitB: B forfeited; A is credited a win.
	ForfeitB
	// DoubleForfeit: neither side acknowledged; both take a loss and
	// nobody is credited a win.
	DoubleForfeit
)

func (k OutcomeKind) String() string {
	switch k {
	case WinA:
		return "win_a"
	case WinB:
		return "win_b"
	case Draw:
		return "draw"
	case ForfeitA:
		return "forfeit_a"
	case ForfeitB:
		return "forfeit_b"
	case DoubleForfeit:
		return "double_forfeit"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// ParseOutcomeKind resolves the persisted string form.
func ParseOutcomeKind(raw string) (OutcomeKind, error) {
	for _, k := range []OutcomeKind{WinA, WinB, Draw, ForfeitA, ForfeitB, DoubleForfeit} {
		if k.String() == raw {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome kind %q", raw)
}

// Forfeited reports whether the outcome is a technical loss rather than a
// decided result.
func (k OutcomeKind) Forfeited() bool {
	return k == ForfeitA || k == ForfeitB || k == DoubleForfeit
}

// Outcome is one contest result reported to the ledger, keyed by the
// immutable fixture ID.
type Outcome struct {
	FixtureID    string
	Round        int
	ParticipantA string
	ParticipantB string
	Kind         OutcomeKind
	// DrawnValue is the value drawn during resolution; zero for forfeits,
	// where nothing was drawn.
	DrawnValue int
	// ChoiceA/ChoiceB are the declared parities; empty for a side that
	// never submitted one.
	ChoiceA protocol.Parity
	ChoiceB protocol.Parity
	// ConversationID correlates the report with its match exchange.
	ConversationID string
}

// Winner names the credited participant, empty for draws and double
// forfeits.
func (o Outcome) Winner() string {
	switch o.Kind {
	case WinA, ForfeitB:
		return o.ParticipantA
	case WinB, ForfeitA:
		return o.ParticipantB
	default:
		return ""
	}
}

// Entry is one participant's aggregate line in the standings.
// Invariants: Points == 3*Wins + Draws and Played == Wins+Draws+Losses.
type Entry struct {
	Participant string `json:"participant"`
	Rank        int    `json:"rank"`
	Played      int    `json:"played"`
	Wins        int    `json:"wins"`
	Draws       int    `json:"draws"`
	Losses      int    `json:"losses"`
	Points      int    `json:"points"`
}

// Archiver persists applied outcomes. Failures must surface to the
// caller as retryable errors, never be swallowed: the reporter retries
// and idempotency makes the replay safe.
type Archiver interface {
	ArchiveOutcome(ctx context.Context, out Outcome, seq int64) error
}

// Ledger maintains the monotonically consistent ranking table. It is the
// only mutable state shared by concurrent contest instances; every
// mutation runs inside a single-writer critical section, and reads are
// served from snapshot copies taken outside it.
//
// Idempotency: the processed-fixture set makes Apply a no-op for a
// fixture ID that has already been applied, so retried reports - even
// ones whose earlier attempt succeeded but lost its acknowledgment -
// cannot double-count.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	order     []string // registration order, the final tie-break
	processed map[string]bool
	clock     *Clock
	archiver  Archiver
	logger    *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithArchiver attaches a persistence boundary invoked before each
// mutation commits.
func WithArchiver(a Archiver) Option {
	return func(l *Ledger) { l.archiver = a }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock supplies a pre-positioned clock, e.g. when resuming from
// persisted state.
func WithClock(c *Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// New creates a ledger with a zeroed entry per participant. Participant
// order is the registration order used as the final ranking tie-break.
func New(participants []string, opts ...Option) *Ledger {
	l := &Ledger{
		entries:   make(map[string]*Entry, len(participants)),
		order:     make([]string, 0, len(participants)),
		processed: make(map[string]bool),
		clock:     NewClock(),
		logger:    slog.Default(),
	}
	for _, p := range participants {
		l.entries[p] = &Entry{Participant: p}
		l.order = append(l.order, p)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply records one outcome and returns the standings after application.
// Reapplying a fixture ID already in the processed set returns the
// current standings unchanged.
//
// Persistence runs inside the critical section before the mutation
// commits: if the archiver fails, the ledger is untouched and the fixture
// stays unprocessed, so the caller's retry replays cleanly.
func (l *Ledger) Apply(ctx context.Context, out Outcome) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.processed[out.FixtureID] {
		l.logger.Debug("outcome already applied, skipping",
			"fixture_id", out.FixtureID,
			"conversation_id", out.ConversationID,
		)
		return l.snapshotLocked(), nil
	}

	a, okA := l.entries[out.ParticipantA]
	b, okB := l.entries[out.ParticipantB]
	if !okA || !okB {
		return nil, protocol.NewError(protocol.CodeUnknownPeer,
			fmt.Sprintf("outcome names unregistered participant (%s vs %s)", out.ParticipantA, out.ParticipantB)).
			WithFixture(out.FixtureID)
	}

	seq := l.clock.Next()
	if l.archiver != nil {
		if err := l.archiver.ArchiveOutcome(ctx, out, seq); err != nil {
			return nil, fmt.Errorf("archive outcome %s: %w",
				out.FixtureID, protocol.NewError(protocol.CodePeerUnavailable, err.Error()).WithFixture(out.FixtureID))
		}
	}

	switch out.Kind {
	case WinA, ForfeitB:
		credit(a, 1, 0, 0)
		credit(b, 0, 0, 1)
	case WinB, ForfeitA:
		credit(a, 0, 0, 1)
		credit(b, 1, 0, 0)
	case Draw:
		credit(a, 0, 1, 0)
		credit(b, 0, 1, 0)
	case DoubleForfeit:
		credit(a, 0, 0, 1)
		credit(b, 0, 0, 1)
	default:
		return nil, fmt.Errorf("unknown outcome kind %d for fixture %s", int(out.Kind), out.FixtureID)
	}
	l.processed[out.FixtureID] = true

	l.logger.Info("outcome applied",
		"fixture_id", out.FixtureID,
		"conversation_id", out.ConversationID,
		"outcome", out.Kind.String(),
		"seq", seq,
	)

	return l.snapshotLocked(), nil
}

// Standings returns a ranked snapshot copy. Safe for concurrent use;
// callers own the returned slice.
func (l *Ledger) Standings() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Processed reports whether a fixture's outcome has been applied.
func (l *Ledger) Processed(fixtureID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed[fixtureID]
}

// ProcessedCount returns the number of applied fixtures.
func (l *Ledger) ProcessedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processed)
}

// Leaders returns the participant(s) at rank 1. Co-ranked leaders are all
// returned; no tie-break beyond points and wins is applied.
func (l *Ledger) Leaders() []string {
	standings := l.Standings()
	var leaders []string
	for _, e := range standings {
		if e.Rank != 1 {
			break
		}
		leaders = append(leaders, e.Participant)
	}
	return leaders
}

// snapshotLocked ranks and copies the table. Callers hold l.mu.
//
// Order: points descending, wins descending, then registration order.
// Entries equal on points and wins share a rank (co-ranking preserved).
func (l *Ledger) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, *l.entries[p])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Wins > out[j].Wins
	})
	for i := range out {
		if i > 0 && out[i].Points == out[i-1].Points && out[i].Wins == out[i-1].Wins {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}

// credit applies one side's deltas. Win 3 points, draw 1, loss 0.
func credit(e *Entry, wins, draws, losses int) {
	e.Played++
	e.Wins += wins
	e.Draws += draws
	e.Losses += losses
	e.Points += 3*wins + draws
}
