// Package ledger maintains the tournament standings table.
//
// Outcomes arrive concurrently from many contest instances, possibly out
// of order, duplicated, or replayed after lost acknowledgments. The
// ledger converges regardless: every mutation is serialized behind a
// single-writer critical section, and a processed-fixture set makes
// application idempotent per fixture ID.
package ledger
