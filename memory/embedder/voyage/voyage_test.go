package voyage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/becomeliminal/cortex/core"
)

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, core.ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got %v", err)
	}
}

func TestEmbedBatch_FlavorAndOrdering(t *testing.T) {
	var mu sync.Mutex
	var requests []embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		// Reply out of order; the client must sort by index.
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(len(req.Input[i]))}, Index: i})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	e, err := New(Config{APIKey: "k", BaseURL: srv.URL, BatchSize: 2, Dimensions: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"}, core.FlavorDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 || vecs[0][0] != 1 || vecs[1][0] != 2 || vecs[2][0] != 3 {
		t.Errorf("Unexpected vectors %v", vecs)
	}
	if len(requests) != 2 {
		t.Fatalf("Expected 2 batched requests, got %d", len(requests))
	}
	if requests[0].InputType != "document" || requests[0].Model != DefaultModel {
		t.Errorf("Unexpected request %+v", requests[0])
	}

	if _, err := e.Embed(context.Background(), "q", core.FlavorQuery); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if requests[2].InputType != "query" {
		t.Errorf("Expected query input type, got %q", requests[2].InputType)
	}
}

func TestEmbed_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   core.ProviderErrorKind
	}{
		{http.StatusUnauthorized, core.ProviderAuth},
		{http.StatusTooManyRequests, core.ProviderRateLimit},
		{http.StatusInternalServerError, core.ProviderTransport},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		e, _ := New(Config{APIKey: "k", BaseURL: srv.URL})
		_, err := e.Embed(context.Background(), "x", core.FlavorQuery)
		srv.Close()

		var perr *core.ProviderError
		if !errors.As(err, &perr) || perr.Kind != tt.kind {
			t.Errorf("status %d: expected kind %s, got %v", tt.status, tt.kind, err)
		}
	}
}

func TestEmbed_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	e, _ := New(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := e.Embed(context.Background(), "x", core.FlavorQuery)
	if !errors.Is(err, core.ErrProviderTimeout) {
		t.Errorf("Expected ErrProviderTimeout, got %v", err)
	}
}
