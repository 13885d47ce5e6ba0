package memory

import (
	"fmt"

	"github.com/google/uuid"
)

// Metadata keys stored on every entry.
const (
	MetaSource   = "source"
	MetaScopeKey = "scope_key"
	MetaOrigin   = "origin"
	MetaKind     = "kind"
)

// Kind distinguishes how an entry came to exist.
type Kind string

const (
	KindSummary Kind = "summary"
	KindFile    Kind = "file"
	KindRepo    Kind = "repo"
)

// SummarySource is the source label carried by every conversation summary.
const SummarySource = "Conversation Summary"

// Metadata describes where an entry came from.
type Metadata struct {
	// Source is the human-visible provenance shown by ListSources.
	Source string
	// ScopeKey is the unsanitized scope key the entry was written under.
	ScopeKey string
	// Origin groups entries written by one ingestion call so they can be replaced together.
	Origin string
	Kind   Kind
}

// Validate checks that the fields every store relies on are set.
func (m Metadata) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("entry metadata: %s is required", MetaSource)
	}
	if m.ScopeKey == "" {
		return fmt.Errorf("entry metadata: %s is required", MetaScopeKey)
	}
	return nil
}

// Map flattens the metadata into the string map vector stores persist.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		MetaSource:   m.Source,
		MetaScopeKey: m.ScopeKey,
	}
	if m.Origin != "" {
		out[MetaOrigin] = m.Origin
	}
	if m.Kind != "" {
		out[MetaKind] = string(m.Kind)
	}
	return out
}

// MetadataFromMap is the inverse of Metadata.Map.
func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		Source:   m[MetaSource],
		ScopeKey: m[MetaScopeKey],
		Origin:   m[MetaOrigin],
		Kind:     Kind(m[MetaKind]),
	}
}

// Entry is one stored unit of retrievable text.
type Entry struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  Metadata
}

// NewEntry creates an entry with a fresh, collision-resistant identifier.
func NewEntry(document string, embedding []float32, meta Metadata) Entry {
	return Entry{
		ID:        uuid.New().String(),
		Document:  document,
		Embedding: embedding,
		Metadata:  meta,
	}
}

// Result is an entry returned by a similarity query.
type Result struct {
	Entry
	Similarity float32
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
