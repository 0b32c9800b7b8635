// Package schedule produces round-robin tournament fixtures.
//
// Scheduling is a pure function: no I/O, no randomness. Given the same
// participant and conductor lists it always yields the same fixture plan.
package schedule

import "fmt"

// Fixture is one scheduled contest between two participants. Created once
// at tournament setup and immutable thereafter.
type Fixture struct {
	// ID encodes round and sequence within the round, e.g. "r02m01".
	ID string
	// Round is the 1-based round number.
	Round int
	// ParticipantA and ParticipantB are the unordered pair for this contest.
	ParticipantA string
	ParticipantB string
	// Conductor is the conductor instance assigned to run the contest.
	Conductor string
}

// Round groups the fixtures dispatched together; the round's joint
// completion gates standings publication.
type Round struct {
	Number   int
	Fixtures []Fixture
	// Bye names the participant sitting out this round (odd field sizes
	// only), empty otherwise.
	Bye string
}

// Plan builds the full round-robin schedule using the circle method:
// one participant is held fixed while the others rotate once per round,
// pairing opposite ends of the circle.
//
// For n participants the plan holds exactly n*(n-1)/2 fixtures with every
// unordered pair appearing once: n-1 rounds of n/2 fixtures when n is
// even, n rounds with one bye each when n is odd. Conductors are assigned
// round-robin in fixture creation order, so load is balanced to within
// one fixture.
func Plan(participants, conductors []string) ([]Round, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("round-robin needs at least 2 participants, got %d", len(participants))
	}
	if len(conductors) == 0 {
		return nil, fmt.Errorf("round-robin needs at least 1 conductor")
	}
	if err := checkDistinct(participants); err != nil {
		return nil, err
	}

	// The rotating circle. An empty slot marks the bye for odd sizes.
	circle := make([]string, len(participants))
	copy(circle, participants)
	if len(circle)%2 != 0 {
		circle = append(circle, "")
	}

	n := len(circle)
	rounds := make([]Round, 0, n-1)
	fixtureCount := 0

	for r := 1; r < n; r++ {
		round := Round{Number: r}
		for i := 0; i < n/2; i++ {
			a, b := circle[i], circle[n-1-i]
			if a == "" || b == "" {
				if a == "" {
					round.Bye = b
				} else {
					round.Bye = a
				}
				continue
			}
			fixtureCount++
			round.Fixtures = append(round.Fixtures, Fixture{
				ID:           fmt.Sprintf("r%02dm%02d", r, len(round.Fixtures)+1),
				Round:        r,
				ParticipantA: a,
				ParticipantB: b,
				Conductor:    conductors[(fixtureCount-1)%len(conductors)],
			})
		}
		rounds = append(rounds, round)

		// Rotate everything except circle[0] one position clockwise.
		last := circle[n-1]
		copy(circle[2:], circle[1:n-1])
		circle[1] = last
	}

	return rounds, nil
}

// Fixtures flattens a plan into creation order.
func Fixtures(rounds []Round) []Fixture {
	var all []Fixture
	for _, r := range rounds {
		all = append(all, r.Fixtures...)
	}
	return all
}

func checkDistinct(participants []string) error {
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return fmt.Errorf("participant name must not be empty")
		}
		if seen[p] {
			return fmt.Errorf("duplicate participant %q", p)
		}
		seen[p] = true
	}
	return nil
}
