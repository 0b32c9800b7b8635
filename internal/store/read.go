package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/protocol"
)

// ReadOutcomes returns every archived outcome in application order
// (ORDER BY seq ASC, fixture_id ASC COLLATE BINARY for determinism).
//
// Returns an empty slice (not nil) if the archive is empty.
func (s *Store) ReadOutcomes(ctx context.Context) ([]ledger.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fixture_id, round, participant_a, participant_b, kind, drawn_value, choice_a, choice_b, conversation_id
		FROM outcomes
		ORDER BY seq ASC, fixture_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []ledger.Outcome{}
	for rows.Next() {
		out, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	return outcomes, nil
}

// ReadOutcome retrieves a single archived outcome by fixture ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadOutcome(ctx context.Context, fixtureID string) (ledger.Outcome, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fixture_id, round, participant_a, participant_b, kind, drawn_value, choice_a, choice_b, conversation_id
		FROM outcomes
		WHERE fixture_id = ?
	`, fixtureID)

	return scanOutcome(row)
}

// ReadStandings returns the table published after the given round,
// ranked order first, then participant for a stable tie layout.
//
// Returns an empty slice (not nil) if the round was never published.
func (s *Store) ReadStandings(ctx context.Context, round int) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant, rank, played, wins, draws, losses, points
		FROM standings
		WHERE round = ?
		ORDER BY rank ASC, participant COLLATE BINARY ASC
	`, round)
	if err != nil {
		return nil, fmt.Errorf("query standings: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.Participant, &e.Rank, &e.Played, &e.Wins, &e.Draws, &e.Losses, &e.Points); err != nil {
			return nil, fmt.Errorf("scan standings row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standings: %w", err)
	}

	return entries, nil
}

// LatestRound returns the highest round with published standings,
// 0 when nothing has been published yet.
func (s *Store) LatestRound(ctx context.Context) (int, error) {
	var round sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(round) FROM standings`).Scan(&round)
	if err != nil {
		return 0, fmt.Errorf("query latest round: %w", err)
	}
	if !round.Valid {
		return 0, nil
	}
	return int(round.Int64), nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (ledger.Outcome, error) {
	var out ledger.Outcome
	var kind, choiceA, choiceB string

	err := row.Scan(
		&out.FixtureID,
		&out.Round,
		&out.ParticipantA,
		&out.ParticipantB,
		&kind,
		&out.DrawnValue,
		&choiceA,
		&choiceB,
		&out.ConversationID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.Outcome{}, err
		}
		return ledger.Outcome{}, fmt.Errorf("scan outcome: %w", err)
	}

	out.Kind, err = ledger.ParseOutcomeKind(kind)
	if err != nil {
		return ledger.Outcome{}, fmt.Errorf("scan outcome %s: %w", out.FixtureID, err)
	}
	out.ChoiceA = protocol.Parity(choiceA)
	out.ChoiceB = protocol.Parity(choiceB)

	return out, nil
}
