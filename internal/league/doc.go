// Package league orchestrates a round-robin tournament across the
// scheduler, the conductors, and the standings ledger: announce a round,
// run its fixtures concurrently, wait for joint completion, publish
// standings, repeat, declare the champion(s).
package league
