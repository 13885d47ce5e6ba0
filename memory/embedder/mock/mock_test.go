package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory/embedder/mock"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New(64)

	a, _ := e.Embed(ctx, "hello world", core.FlavorQuery)
	b, _ := e.Embed(ctx, "hello world", core.FlavorDocument)
	c, _ := e.Embed(ctx, "something else", core.FlavorQuery)

	if len(a) != 64 {
		t.Fatalf("Expected 64 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected identical vectors for identical text at index %d", i)
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Expected different vectors for different text")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("Expected unit vector, got squared norm %f", norm)
	}
}

func TestMockEmbedder_BatchCountsOneCall(t *testing.T) {
	e := mock.New(0)
	if e.Dimensions() != mock.DefaultDimensions {
		t.Errorf("Expected default dimensions, got %d", e.Dimensions())
	}

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, core.FlavorDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vecs))
	}
	if e.Calls() != 1 || e.Texts() != 3 {
		t.Errorf("Expected 1 call for 3 texts, got %d calls, %d texts", e.Calls(), e.Texts())
	}
}
