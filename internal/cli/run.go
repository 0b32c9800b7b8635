package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ludus/internal/conductor"
	"github.com/roach88/ludus/internal/league"
	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/player"
	"github.com/roach88/ludus/internal/protocol"
	"github.com/roach88/ludus/internal/registry"
	"github.com/roach88/ludus/internal/store"
	"github.com/roach88/ludus/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunSummary is the run command's JSON payload.
type RunSummary struct {
	Champions []string       `json:"champions"`
	Rounds    int            `json:"rounds"`
	Stalled   []string       `json:"stalled,omitempty"`
	Standings []ledger.Entry `json:"standings"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run a tournament from a CUE definition",
		Long: `Run a full round-robin tournament from a CUE tournament definition.

Participants play in-process: each one registers with the credential
registry, accepts invites, and declares its parity when asked. Outcomes
and per-round standings are archived to the SQLite database.

Example:
  ludus run --db ./ludus.db ./tournament.cue
  ludus run --db /tmp/test.db ./configs --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTournament(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTournament(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("loading tournament definition", "path", configPath)
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	slog.Info("definition loaded",
		"participants", len(cfg.Participants),
		"conductors", cfg.Conductors,
		"unit", cfg.Unit,
	)

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	co, err := assembleTournament(cfg, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to assemble tournament", err)
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := co.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "tournament error", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	summary := RunSummary{
		Champions: result.Champions,
		Rounds:    len(result.Rounds),
		Stalled:   result.Stalled,
		Standings: result.Standings,
	}
	if opts.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return WrapExitError(ExitCommandError, "failed to render summary", err)
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), ledger.FormatTable(result.Standings))
		fmt.Fprintf(cmd.OutOrStdout(), "\nChampions: %v\n", result.Champions)
	}

	if len(result.Stalled) > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d fixture(s) stalled: %v", len(result.Stalled), result.Stalled))
	}
	return nil
}

// assembleTournament wires the registry, in-process participants,
// conductors, and coordinator from a loaded definition.
func assembleTournament(cfg *Config, st *store.Store) (*league.Coordinator, error) {
	reg := registry.New()
	bus := transport.NewLocal()

	for _, name := range cfg.Participants {
		enrollment, err := reg.Register(protocol.SenderID{Role: protocol.RolePlayer, ID: name})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		p := player.New(name, enrollment.Token, reg, player.WithStrategy(player.Random()))
		bus.Register(name, p.Handle)
	}

	transportCfg := transport.Config{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		BaseDelay:        time.Duration(cfg.Retry.BaseDelay) * cfg.Unit,
		MaxDelay:         time.Duration(cfg.Retry.MaxDelay) * cfg.Unit,
		Multiplier:       cfg.Retry.Multiplier,
		BreakerThreshold: 3,
		BreakerReset:     30 * cfg.Unit,
	}
	client := transport.NewClient(bus, transportCfg, slog.Default())

	lgr := ledger.New(reg.Players(), ledger.WithArchiver(st))
	reporter := league.NewLedgerReporter(lgr)

	timeouts := conductor.Timeouts{
		Ack:      time.Duration(cfg.Timeouts.Ack) * cfg.Unit,
		Decision: time.Duration(cfg.Timeouts.Decision) * cfg.Unit,
		Request:  time.Duration(cfg.Timeouts.Request) * cfg.Unit,
	}
	runners := make([]league.MatchRunner, cfg.Conductors)
	for i := range runners {
		id := fmt.Sprintf("c%d", i+1)
		enrollment, err := reg.Register(protocol.SenderID{Role: protocol.RoleConductor, ID: id})
		if err != nil {
			return nil, fmt.Errorf("register conductor %s: %w", id, err)
		}
		runners[i] = conductor.New(id, client, reporter, reg,
			conductor.WithCredential(enrollment.Token),
			conductor.WithTimeouts(timeouts),
			conductor.WithRetry(transportCfg),
		)
	}

	return league.New(cfg.Participants, runners, lgr,
		league.WithSnapshotArchiver(st),
		league.WithCapacity(cfg.Capacity),
	), nil
}
