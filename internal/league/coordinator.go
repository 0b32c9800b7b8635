package league

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/ludus/internal/conductor"
	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/schedule"
)

// Phase is the tournament lifecycle position.
type Phase int

const (
	PhaseSetup Phase = iota + 1
	PhaseRoundInProgress
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseRoundInProgress:
		return "round_in_progress"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MatchRunner runs one fixture to completion. Implemented by
// *conductor.Conductor; the harness substitutes scripted runners.
type MatchRunner interface {
	ID() string
	Run(ctx context.Context, fx schedule.Fixture) (*conductor.Match, error)
}

// SnapshotArchiver persists the published standings after each round.
type SnapshotArchiver interface {
	ArchiveStandings(ctx context.Context, round int, entries []ledger.Entry) error
}

// Result is the terminal tournament summary.
type Result struct {
	// Champions holds the participant(s) at rank 1; co-ranked leaders
	// are all champions.
	Champions []string
	// Standings is the final ranked table.
	Standings []ledger.Entry
	// Rounds is the fixture plan the tournament ran.
	Rounds []schedule.Round
	// Stalled lists fixture IDs that never reached the ledger despite
	// the conductor's and the coordinator's retries. Operator attention
	// is needed; the standings exclude these fixtures.
	Stalled []string
}

// Coordinator orchestrates the tournament: it plans the fixtures once,
// dispatches each round's fixtures to conductors concurrently, waits for
// the round to finish, publishes standings, and declares the champion(s)
// after the final round.
//
// The coordinator never mutates the ledger itself - outcomes flow in
// through the conductors' report path - it only reads published
// standings between rounds.
type Coordinator struct {
	participants []string
	runners      []MatchRunner
	lgr          *ledger.Ledger
	snapshots    SnapshotArchiver
	capacity     int
	logger       *slog.Logger

	mu    sync.Mutex
	phase Phase
	round int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSnapshotArchiver attaches standings persistence per round.
func WithSnapshotArchiver(a SnapshotArchiver) Option {
	return func(c *Coordinator) { c.snapshots = a }
}

// WithCapacity bounds concurrent matches per conductor. Default 4.
func WithCapacity(n int) Option {
	return func(c *Coordinator) { c.capacity = n }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a coordinator for the given participants and conductors.
func New(participants []string, runners []MatchRunner, lgr *ledger.Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		participants: participants,
		runners:      runners,
		lgr:          lgr,
		capacity:     4,
		logger:       slog.Default(),
		phase:        PhaseSetup,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CurrentRound returns the round in progress, 0 outside rounds.
func (c *Coordinator) CurrentRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *Coordinator) setPhase(p Phase, round int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
	c.round = round
}

// Run conducts the full tournament and returns the final result.
//
// Standings are published only at round boundaries: every fixture of a
// round completes before the table is read, so a partial round is never
// visible. Fixture reports may land in any order inside the round; the
// ledger's idempotency keys them by fixture ID.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if len(c.runners) == 0 {
		return nil, fmt.Errorf("no conductors configured")
	}

	conductorIDs := make([]string, len(c.runners))
	byID := make(map[string]MatchRunner, len(c.runners))
	for i, r := range c.runners {
		conductorIDs[i] = r.ID()
		byID[r.ID()] = r
	}

	rounds, err := schedule.Plan(c.participants, conductorIDs)
	if err != nil {
		return nil, fmt.Errorf("plan tournament: %w", err)
	}
	c.logger.Info("tournament start",
		"participants", len(c.participants),
		"rounds", len(rounds),
		"fixtures", len(schedule.Fixtures(rounds)),
		"conductors", len(c.runners),
	)

	result := &Result{Rounds: rounds}

	for _, round := range rounds {
		c.setPhase(PhaseRoundInProgress, round.Number)
		stalled, err := c.runRound(ctx, round, byID)
		if err != nil {
			return nil, err
		}
		result.Stalled = append(result.Stalled, stalled...)

		standings := c.lgr.Standings()
		c.logger.Info("standings published", "round", round.Number, "leader", standings[0].Participant)
		if c.snapshots != nil {
			if err := c.snapshots.ArchiveStandings(ctx, round.Number, standings); err != nil {
				// Snapshots are a convenience copy of ledger state; a
				// failed snapshot is operator-visible but not fatal.
				c.logger.Error("standings snapshot failed", "round", round.Number, "error", err)
			}
		}
	}

	c.setPhase(PhaseComplete, 0)
	result.Standings = c.lgr.Standings()
	result.Champions = c.lgr.Leaders()
	c.logger.Info("tournament complete", "champions", result.Champions)
	return result, nil
}

// runRound dispatches every fixture of a round concurrently, bounded per
// conductor, and blocks until all of them have finished. Returns the IDs
// of fixtures that stalled (completed matches whose reports never landed,
// or matches that could not complete at all).
func (c *Coordinator) runRound(ctx context.Context, round schedule.Round, byID map[string]MatchRunner) ([]string, error) {
	c.logger.Info("round announced",
		"round", round.Number,
		"fixtures", len(round.Fixtures),
		"bye", round.Bye,
	)

	// One semaphore per conductor bounds its concurrent matches.
	sems := make(map[string]chan struct{}, len(byID))
	for id := range byID {
		sems[id] = make(chan struct{}, c.capacity)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var stalled []string

	for _, fx := range round.Fixtures {
		runner, ok := byID[fx.Conductor]
		if !ok {
			return nil, fmt.Errorf("fixture %s assigned to unknown conductor %s", fx.ID, fx.Conductor)
		}
		wg.Add(1)
		go func(fx schedule.Fixture, runner MatchRunner, sem chan struct{}) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				stalled = append(stalled, fx.ID)
				mu.Unlock()
				return
			}

			if _, err := runner.Run(ctx, fx); err != nil {
				// The conductor exhausted its own retries. Surface the
				// stall; the tournament proceeds without this fixture.
				c.logger.Error("fixture stalled",
					"fixture_id", fx.ID,
					"round", fx.Round,
					"conductor", runner.ID(),
					"error", err,
				)
				mu.Lock()
				stalled = append(stalled, fx.ID)
				mu.Unlock()
			}
		}(fx, runner, sems[fx.Conductor])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stalled, fmt.Errorf("round %d aborted: %w", round.Number, err)
	}
	c.logger.Info("round complete", "round", round.Number, "stalled", len(stalled))
	return stalled, nil
}

// LedgerReporter adapts the ledger as the conductors' report sink.
type LedgerReporter struct {
	lgr *ledger.Ledger
}

// NewLedgerReporter wires conductor reports into the ledger.
func NewLedgerReporter(lgr *ledger.Ledger) *LedgerReporter {
	return &LedgerReporter{lgr: lgr}
}

// Report applies an outcome; application is idempotent per fixture ID.
func (r *LedgerReporter) Report(ctx context.Context, out ledger.Outcome) error {
	_, err := r.lgr.Apply(ctx, out)
	return err
}
