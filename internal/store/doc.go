// Package store persists the tournament archive: every resolved
// outcome and the standings table published at each round boundary.
//
// SQLite is the backing store. All writes carry ON CONFLICT DO NOTHING
// clauses keyed on the fixture ID or the (round, participant) pair, so
// the archive absorbs replayed reports without error - the same
// idempotency contract the in-memory ledger holds.
package store
