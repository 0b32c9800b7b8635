package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ludus/internal/ledger"
)

// AssertGolden compares the result's rendered final standings table
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for the final table of a
// deterministic scenario: fixed choices plus a fixed drawn value mean
// any drift here is an engine behavior change, not test noise.
func AssertGolden(t *testing.T, result *Result) {
	t.Helper()

	table := ledger.FormatTable(result.League.Standings)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Scenario.Name, []byte(table))
}
