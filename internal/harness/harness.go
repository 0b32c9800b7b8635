package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/ludus/internal/conductor"
	"github.com/roach88/ludus/internal/league"
	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/player"
	"github.com/roach88/ludus/internal/protocol"
	"github.com/roach88/ludus/internal/registry"
	"github.com/roach88/ludus/internal/store"
	"github.com/roach88/ludus/internal/transport"
)

// Result holds everything a finished scenario exposes for assertions.
type Result struct {
	Scenario *Scenario
	League   *league.Result
	Ledger   *ledger.Ledger
	Store    *store.Store
	Players  map[string]*player.Player
}

// Close releases the scenario's in-memory archive.
func (r *Result) Close() error {
	return r.Store.Close()
}

// Run executes a scenario against the real engine and returns the
// result. Each scenario gets a fresh in-memory archive for isolation;
// logging is discarded so scripted failures don't drown test output.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory archive: %w", err)
	}

	reg := registry.New(registry.WithLogger(logger))
	bus := transport.NewLocal()

	players := make(map[string]*player.Player, len(scenario.Participants))
	names := make([]string, 0, len(scenario.Participants))
	for _, part := range scenario.Participants {
		enrollment, err := reg.Register(protocol.SenderID{Role: protocol.RolePlayer, ID: part.Name})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("register %s: %w", part.Name, err)
		}
		p := player.New(part.Name, enrollment.Token, reg, scriptOptions(part, logger)...)
		players[part.Name] = p
		bus.Register(part.Name, p.Handle)
		names = append(names, part.Name)
	}

	unit := time.Duration(scenario.Unit)
	transportCfg := transport.DefaultConfig(unit)
	client := transport.NewClient(bus, transportCfg, logger)

	archiver := &flakyArchiver{Store: st, failures: int32(scenario.ReportFailures)}
	lgr := ledger.New(names, ledger.WithArchiver(archiver), ledger.WithLogger(logger))
	reporter := league.NewLedgerReporter(lgr)

	draw := scenario.Draw
	runners := make([]league.MatchRunner, scenario.Conductors)
	for i := range runners {
		id := fmt.Sprintf("c%d", i+1)
		enrollment, err := reg.Register(protocol.SenderID{Role: protocol.RoleConductor, ID: id})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("register conductor %s: %w", id, err)
		}
		runners[i] = conductor.New(id, client, reporter, reg,
			conductor.WithCredential(enrollment.Token),
			conductor.WithTimeouts(conductor.DefaultTimeouts(unit)),
			conductor.WithRetry(transportCfg),
			conductor.WithDraw(func() (int, error) { return draw, nil }),
			conductor.WithLogger(logger),
		)
	}

	co := league.New(names, runners, lgr,
		league.WithSnapshotArchiver(st),
		league.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	leagueResult, err := co.Run(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	return &Result{
		Scenario: scenario,
		League:   leagueResult,
		Ledger:   lgr,
		Store:    st,
		Players:  players,
	}, nil
}

// scriptOptions translates a scripted participant into player options.
func scriptOptions(part Participant, logger *slog.Logger) []player.Option {
	opts := []player.Option{
		player.WithStrategy(player.Fixed(protocol.Parity(part.Choice))),
		player.WithLogger(logger),
	}
	if part.Delay > 0 {
		opts = append(opts, player.WithDelay(time.Duration(part.Delay)))
	}
	switch part.Behavior {
	case BehaviorSilentInvite:
		opts = append(opts, player.WithSilentInvite())
	case BehaviorSilentChoice:
		opts = append(opts, player.WithSilentChoice())
	case BehaviorInvalidChoice:
		opts = append(opts, player.WithChoiceError(
			protocol.NewError(protocol.CodeInvalidChoice, "scripted refusal")))
	}
	return opts
}

// flakyArchiver rejects the first N outcome writes so report retries
// get exercised, then delegates to the real archive.
type flakyArchiver struct {
	*store.Store
	failures int32
}

func (f *flakyArchiver) ArchiveOutcome(ctx context.Context, out ledger.Outcome, seq int64) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return fmt.Errorf("archive temporarily unavailable")
	}
	return f.Store.ArchiveOutcome(ctx, out, seq)
}
