// Package enrichment derives a title, summary, tags and source type from an
// item's raw text.
//
// A Provider performs the derivation; StubProvider is deterministic and needs
// no network, while the gemini package supplies an LLM-backed Provider.
// Handler plugs a Provider into the outbox worker as the "enrichment" job
// type, moving items from ENRICHING to READY_TO_CONFIRM or FAILED.
package enrichment
