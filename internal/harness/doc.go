// Package harness runs YAML-scripted end-to-end tournaments against
// the real engine: credential registry, in-process transport, match
// conductors, league coordinator, standings ledger, and the SQLite
// archive all participate.
//
// A scenario scripts the participants - fixed parity choices, optional
// delays, and failure modes like going silent on invites or answering
// choice requests with a terminal error - and fixes the drawn value, so
// every outcome is a pure function of the script. Assertions then check
// archived outcomes, final standings lines, champion sets, processed
// counts, stalls, and delivered error notices; golden files pin the
// rendered final table of deterministic scenarios.
package harness
