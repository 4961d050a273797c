// Package postgres implements the item and outbox stores on PostgreSQL and
// bridges dispatch notifications across processes with LISTEN/NOTIFY.
//
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never wait on, or
// double-claim, each other's rows. Schema changes are embedded goose
// migrations applied by Migrate.
package postgres
