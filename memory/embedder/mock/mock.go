package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/becomeliminal/cortex/core"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// MockEmbedder is a simple mock embedder for testing.
// It generates deterministic embeddings based on text hash. Both flavors
// produce the same vector, so a query for stored text finds it exactly.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
	texts      atomic.Int64
}

// New creates a new mock embedder. Non-positive dims uses DefaultDimensions.
func New(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockEmbedder{
		dimensions: dims,
	}
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string, _ core.Flavor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(1)
	return m.vector(text), nil
}

// EmbedBatch embeds every text in one call.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string, _ core.Flavor) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Calls returns how many Embed and EmbedBatch calls were made.
func (m *MockEmbedder) Calls() int64 {
	return m.calls.Load()
}

// Texts returns how many texts were embedded in total.
func (m *MockEmbedder) Texts() int64 {
	return m.texts.Load()
}

// vector seeds an LCG with the FNV-1a hash of text.
func (m *MockEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Convert to [-1, 1] range
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding)
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
