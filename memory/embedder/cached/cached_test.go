package cached_test

import (
	"context"
	"testing"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory/embedder/cached"
	"github.com/becomeliminal/cortex/memory/embedder/mock"
)

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	ctx := context.Background()
	inner := mock.New(16)
	e, err := cached.New(inner, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	first, err := e.Embed(ctx, "hello", core.FlavorQuery)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()

	second, _ := e.Embed(ctx, "hello", core.FlavorQuery)
	if inner.Calls() != 1 {
		t.Errorf("Expected one inner call, got %d", inner.Calls())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("Expected cached vector to match")
		}
	}

	// Different flavor is a different key.
	e.Embed(ctx, "hello", core.FlavorDocument)
	if inner.Calls() != 2 {
		t.Errorf("Expected flavor to miss the cache, got %d calls", inner.Calls())
	}
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	ctx := context.Background()
	inner := mock.New(16)
	e, _ := cached.New(inner, 100)
	defer e.Close()

	if _, err := e.EmbedBatch(ctx, []string{"a", "b"}, core.FlavorDocument); err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	e.Wait()

	vecs, err := e.EmbedBatch(ctx, []string{"a", "b", "c"}, core.FlavorDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 || vecs[2] == nil {
		t.Fatalf("Expected 3 vectors, got %v", vecs)
	}
	if inner.Texts() != 3 {
		t.Errorf("Expected only c to be re-embedded (3 texts total), got %d", inner.Texts())
	}
	if e.Dimensions() != 16 {
		t.Errorf("Expected 16 dimensions, got %d", e.Dimensions())
	}
}
