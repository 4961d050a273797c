// Package events carries best-effort wake-up signals from job producers to
// the in-process worker.
//
// The primary components are:
// - JobCreatedEvent: announces that an outbox job became durable
// - EventHandler: interface for components that react to events
// - Notifier: holds at most one registered handler and fans events out to it
//   and to an optional cross-process broadcaster
//
// Delivery is never guaranteed. Consumers must stay correct if every event is dropped.
package events
