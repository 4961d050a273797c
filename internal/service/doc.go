// Package service implements the item workflows that sit between the HTTP
// handlers and the stores.
//
// Every workflow that creates or revives enrichment work writes the item and
// its outbox job in one transaction and announces the job only after commit.
// Discarding an item cancels its outstanding jobs in the same transaction as
// the status change.
package service
