package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails. It includes the
// final standings to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Result   *Result
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFinal standings:\n")
	for _, entry := range e.Result.League.Standings {
		fmt.Fprintf(&buf, "  [%d] %s %dp (%dw %dd %dl)\n",
			entry.Rank, entry.Participant, entry.Points, entry.Wins, entry.Draws, entry.Losses)
	}

	return buf.String()
}

// Verify evaluates every scenario assertion against the result and
// returns the failures. An empty slice means the scenario passed.
func Verify(result *Result) []error {
	var errs []error
	for _, assertion := range result.Scenario.Assertions {
		var err error
		switch assertion.Type {
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertStandings:
			err = assertStandings(result, assertion)
		case AssertChampions:
			err = assertChampions(result, assertion)
		case AssertProcessed:
			err = assertProcessed(result, assertion)
		case AssertStalled:
			err = assertStalled(result, assertion)
		case AssertNotices:
			err = assertNotices(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// assertOutcome checks an archived outcome's kind and credited winner.
func assertOutcome(result *Result, assertion Assertion) error {
	out, err := result.Store.ReadOutcome(context.Background(), assertion.Fixture)
	if err != nil {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("fixture %s archived as %s", assertion.Fixture, assertion.Kind),
			Actual:   fmt.Sprintf("not archived: %v", err),
			Result:   result,
		}
	}
	if out.Kind.String() != assertion.Kind {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("fixture %s resolved %s", assertion.Fixture, assertion.Kind),
			Actual:   out.Kind.String(),
			Result:   result,
		}
	}
	if assertion.Winner != "" {
		winner := out.Winner()
		if winner != assertion.Winner {
			return &AssertionError{
				Type:     AssertOutcome,
				Expected: fmt.Sprintf("fixture %s won by %s", assertion.Fixture, assertion.Winner),
				Actual:   fmt.Sprintf("won by %q", winner),
				Result:   result,
			}
		}
	}
	return nil
}

// assertStandings checks one participant's final table line.
func assertStandings(result *Result, assertion Assertion) error {
	for _, entry := range result.League.Standings {
		if entry.Participant != assertion.Participant {
			continue
		}
		expected := fmt.Sprintf("rank %d, %d played, %dw %dd %dl, %d points",
			assertion.Rank, assertion.Played, assertion.Wins, assertion.Draws, assertion.Losses, assertion.Points)
		actual := fmt.Sprintf("rank %d, %d played, %dw %dd %dl, %d points",
			entry.Rank, entry.Played, entry.Wins, entry.Draws, entry.Losses, entry.Points)
		if expected != actual {
			return &AssertionError{
				Type:     AssertStandings,
				Expected: assertion.Participant + ": " + expected,
				Actual:   actual,
				Result:   result,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertStandings,
		Expected: fmt.Sprintf("%s in the standings", assertion.Participant),
		Actual:   "not present",
		Result:   result,
	}
}

// assertChampions checks the exact champion set in rank order.
func assertChampions(result *Result, assertion Assertion) error {
	if !reflect.DeepEqual(result.League.Champions, assertion.Champions) {
		return &AssertionError{
			Type:     AssertChampions,
			Expected: fmt.Sprintf("%v", assertion.Champions),
			Actual:   fmt.Sprintf("%v", result.League.Champions),
			Result:   result,
		}
	}
	return nil
}

// assertProcessed checks how many fixtures reached the ledger.
func assertProcessed(result *Result, assertion Assertion) error {
	if got := result.Ledger.ProcessedCount(); got != assertion.Count {
		return &AssertionError{
			Type:     AssertProcessed,
			Expected: fmt.Sprintf("%d fixtures processed", assertion.Count),
			Actual:   fmt.Sprintf("%d", got),
			Result:   result,
		}
	}
	return nil
}

// assertStalled checks the exact stalled fixture list.
func assertStalled(result *Result, assertion Assertion) error {
	got := result.League.Stalled
	want := assertion.Fixtures
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{
			Type:     AssertStalled,
			Expected: fmt.Sprintf("stalled %v", want),
			Actual:   fmt.Sprintf("stalled %v", got),
			Result:   result,
		}
	}
	return nil
}

// assertNotices checks how many error notices a participant received.
func assertNotices(result *Result, assertion Assertion) error {
	p, ok := result.Players[assertion.Participant]
	if !ok {
		return &AssertionError{
			Type:     AssertNotices,
			Expected: fmt.Sprintf("player %s exists", assertion.Participant),
			Actual:   "unknown player",
			Result:   result,
		}
	}
	if got := len(p.Notices()); got != assertion.Count {
		return &AssertionError{
			Type:     AssertNotices,
			Expected: fmt.Sprintf("%d error notices for %s", assertion.Count, assertion.Participant),
			Actual:   fmt.Sprintf("%d", got),
			Result:   result,
		}
	}
	return nil
}
