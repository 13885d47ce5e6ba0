// Package memory implements scoped conversational memory for retrieval-augmented chat.
//
// Every turn and every ingested source belongs to a core.Scope (owner and topic).
// Each scope maps to exactly one vector collection, so retrieval for one scope
// never sees another scope's entries.
//
// Architecture:
//   - Store: Vector storage backend (chromem-go, in-memory or persistent)
//   - Embedder: Text-to-vector conversion (mock, onnx, or an embedding API)
//   - Generator: Text completion (Anthropic Messages API via the engine package)
//   - Catalog: Scope registry and job history (SQLite via the catalog package)
//   - Manager: Orchestrates turns, ingestion and source listing
//
// Turn flow:
//   - RETRIEVE: embed the prompt, fetch at most three nearby entries
//   - ANSWER: generate a reply from the assembled context prompt
//   - RECORD: summarize the exchange and store the summary (in the background by default)
//
// Ingestion replaces everything previously ingested under the same origin label,
// so re-ingesting a file or repository never duplicates entries.
package memory
