package store

import (
	"context"
	"fmt"

	"github.com/roach88/ludus/internal/ledger"
)

// ArchiveOutcome inserts a resolved fixture into the archive. Implements
// ledger.Archiver.
//
// Uses ON CONFLICT(fixture_id) DO NOTHING for idempotency - a replayed
// report inserts nothing and returns no error, so duplicate deliveries
// are harmless all the way down.
func (s *Store) ArchiveOutcome(ctx context.Context, out ledger.Outcome, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(fixture_id, round, participant_a, participant_b, kind, drawn_value, choice_a, choice_b, conversation_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fixture_id) DO NOTHING
	`,
		out.FixtureID,
		out.Round,
		out.ParticipantA,
		out.ParticipantB,
		out.Kind.String(),
		out.DrawnValue,
		string(out.ChoiceA),
		string(out.ChoiceB),
		out.ConversationID,
		seq,
	)
	if err != nil {
		return fmt.Errorf("archive outcome: %w", err)
	}

	return nil
}

// ArchiveStandings persists the table published at a round boundary.
// Implements the coordinator's snapshot sink.
//
// Re-publication of the same round is idempotent: an existing
// (round, participant) row wins and the replayed one is dropped.
func (s *Store) ArchiveStandings(ctx context.Context, round int, entries []ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive standings: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO standings
			(round, participant, rank, played, wins, draws, losses, points)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(round, participant) DO NOTHING
		`,
			round,
			e.Participant,
			e.Rank,
			e.Played,
			e.Wins,
			e.Draws,
			e.Losses,
			e.Points,
		)
		if err != nil {
			return fmt.Errorf("archive standings: insert %s: %w", e.Participant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive standings: commit: %w", err)
	}

	return nil
}
