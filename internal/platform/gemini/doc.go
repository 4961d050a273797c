// Package gemini provides an enrichment.Provider backed by Google's Gemini
// API.
//
// The provider renders a prompt template around the item text, requests a
// JSON response, validates the response against an embedded JSON Schema and
// maps API failures onto enrichment error codes:
//
//   - per-call timeout: LLM_TIMEOUT
//   - API status errors: LLM_API_ERROR
//   - safety blocks: LLM_CONTENT_BLOCKED
//   - malformed or schema-violating output: LLM_VALIDATION_ERROR
//   - anything else: LLM_ERROR
//
// Retries are not performed here; the outbox worker owns retry and backoff.
package gemini
