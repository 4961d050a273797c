// Package outbox implements durable job dispatch: a persistent queue of
// jobs that reference a subject entity, leased to one worker at a time,
// retried with backoff and dead-lettered once the retry budget is spent.
//
// Storage is abstracted by Store (see platform/postgres and platform/sqlite),
// per-type processing by Handler, and wake-ups arrive through events.Notifier
// with a fallback poll timer as the correctness backstop.
package outbox
