package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/cortex/core"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (offline), voyage, openai and ollama (API-based).
//
// Note: Embedder is an implementation detail of Manager.
// Callers of Manager never interact with it directly.
type Embedder interface {
	// Embed converts a single text to an embedding vector in the given flavor.
	Embed(ctx context.Context, text string, flavor core.Flavor) ([]float32, error)

	// EmbedBatch converts many texts at once. The result is index-aligned with texts.
	EmbedBatch(ctx context.Context, texts []string, flavor core.Flavor) ([][]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Generator produces text completions from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store is the vector storage backend.
// Implementations: chromem (embedded, optionally persistent).
type Store interface {
	// Collection returns the named collection, creating it if absent.
	// Concurrent callers for the same name must receive the same collection.
	Collection(ctx context.Context, name string) (Collection, error)

	// Collections lists the names of all collections in the store.
	Collections(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// Collection is one scope's set of entries.
type Collection interface {
	Name() string

	// Count returns the number of entries currently stored.
	Count() int

	// Add inserts entries. Every entry must carry an embedding and valid metadata.
	Add(ctx context.Context, entries []Entry) error

	// Query returns up to limit entries by descending similarity to embedding.
	Query(ctx context.Context, embedding []float32, limit int) ([]Result, error)

	// Entries returns every stored entry.
	Entries(ctx context.Context) ([]Entry, error)

	// DeleteWhere removes entries whose metadata matches all pairs in where.
	// An empty filter is rejected.
	DeleteWhere(ctx context.Context, where map[string]string) error
}

// ScopeRecord binds a collection name to the scope it was derived from.
type ScopeRecord struct {
	Collection string
	Scope      core.Scope
	CreatedAt  time.Time
}

// Catalog records which scope owns which collection.
// It keeps topics listable after collection-name truncation and detects aliasing.
type Catalog interface {
	// RegisterScope records the binding. It returns an error wrapping
	// core.ErrScopeCollision if the collection is already bound to a different scope.
	RegisterScope(ctx context.Context, rec ScopeRecord) error

	// Scopes lists every recorded binding.
	Scopes(ctx context.Context) ([]ScopeRecord, error)
}
