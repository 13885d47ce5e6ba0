package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/becomeliminal/cortex/core"
)

func TestEmbed_AppliesFlavorPrefix(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen = append(seen, req.Input...)
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: out})
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL})
	if e.Dimensions() != 768 {
		t.Errorf("Expected nomic default of 768, got %d", e.Dimensions())
	}

	ctx := context.Background()
	if _, err := e.Embed(ctx, "what is go", core.FlavorQuery); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if _, err := e.EmbedBatch(ctx, []string{"go is a language"}, core.FlavorDocument); err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	want := []string{"search_query: what is go", "search_document: go is a language"}
	if len(seen) != 2 || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("Expected %q, got %q", want, seen)
	}
}

func TestNew_NoPrefixForOtherModels(t *testing.T) {
	e := New(Config{Model: "all-minilm"})
	if e.queryPfx != "" || e.docPfx != "" {
		t.Error("Expected no prefixes for all-minilm")
	}
	if e.Dimensions() != 384 {
		t.Errorf("Expected 384 dimensions, got %d", e.Dimensions())
	}
}
