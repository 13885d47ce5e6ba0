// Package cached memoizes embeddings in a bounded ristretto cache.
//
// Repeated prompts and re-ingestion of unchanged files then cost no provider
// calls. Keys include the flavor, since providers may embed the same text
// differently for queries and documents.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
)

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 10_000

// CachedEmbedder wraps another embedder.
type CachedEmbedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

var _ memory.Embedder = (*CachedEmbedder)(nil)

// New wraps inner with a cache holding up to maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func key(text string, flavor core.Flavor) string {
	return flavor.String() + "\x00" + text
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string, flavor core.Flavor) ([]float32, error) {
	k := key(text, flavor)
	if v, ok := e.cache.Get(k); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text, flavor)
	if err != nil {
		return nil, err
	}
	e.cache.Set(k, vec, 1)
	return vec, nil
}

// EmbedBatch sends only the cache misses to the wrapped embedder, in one call.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string, flavor core.Flavor) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := e.cache.Get(key(text, flavor)); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts, flavor)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.cache.Set(key(missTexts[j], flavor), vecs[j], 1)
	}
	return out, nil
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied.
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}
