package ledger

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// FormatTable renders standings as an aligned text table. Shared by the
// CLI and the golden-file tests, so the layout is deliberately stable.
func FormatTable(entries []Entry) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 0, 2, ' ', 0)

	fmt.Fprintln(w, "RANK\tPARTICIPANT\tPLAYED\tW\tD\tL\tPOINTS")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\n",
			e.Rank, e.Participant, e.Played, e.Wins, e.Draws, e.Losses, e.Points)
	}
	w.Flush()
	return b.String()
}

// FormatOutcomes renders archived outcomes as an aligned text table, in
// application order. Draws and double forfeits have no winner to show.
func FormatOutcomes(outcomes []Outcome) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 0, 2, ' ', 0)

	fmt.Fprintln(w, "FIXTURE\tROUND\tOUTCOME\tWINNER\tDRAWN")
	for _, o := range outcomes {
		winner := o.Winner()
		if winner == "" {
			winner = "-"
		}
		drawn := "-"
		if o.DrawnValue != 0 {
			drawn = fmt.Sprintf("%d", o.DrawnValue)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", o.FixtureID, o.Round, o.Kind, winner, drawn)
	}
	w.Flush()
	return b.String()
}
