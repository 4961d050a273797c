// Package api exposes the item workflows and the health endpoints over HTTP.
//
// All /api routes require a bearer token; the authenticated user ID scopes
// every item operation. Item creation and retry answer 202 Accepted because
// enrichment completes asynchronously through the outbox worker.
package api
