// Package sqlite provides SQLite implementations of the outbox and item
// stores for single-node deployments and tests.
//
// SQLite has no row locks and no SKIP LOCKED. Claims are a single atomic
// conditional UPDATE ... RETURNING, and all access goes through one
// connection so writers are serialized. Timestamps are stored as Unix
// nanoseconds.
package sqlite
