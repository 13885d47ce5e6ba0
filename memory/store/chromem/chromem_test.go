package chromem_test

import (
	"context"
	"sync"
	"testing"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/memory/embedder/mock"
	"github.com/becomeliminal/cortex/memory/store/chromem"
)

const dims = 32

func newStore(t *testing.T) *chromem.ChromemStore {
	t.Helper()
	store, err := chromem.New(chromem.Config{Dimensions: dims})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func entry(t *testing.T, text, source, origin string) memory.Entry {
	t.Helper()
	vec, err := mock.New(dims).Embed(context.Background(), text, core.FlavorDocument)
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	return memory.NewEntry(text, vec, memory.Metadata{
		Source:   source,
		ScopeKey: "5:alice/go",
		Origin:   origin,
		Kind:     memory.KindFile,
	})
}

func TestCollection_SameNameSameCollection(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var wg sync.WaitGroup
	cols := make([]memory.Collection, 8)
	for i := range cols {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			col, err := store.Collection(ctx, "user_alice_topic_go")
			if err != nil {
				t.Errorf("Collection failed: %v", err)
				return
			}
			cols[i] = col
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(cols); i++ {
		if cols[i] != cols[0] {
			t.Fatalf("Expected every caller to receive the same collection")
		}
	}

	names, err := store.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(names) != 1 || names[0] != "user_alice_topic_go" {
		t.Errorf("Expected one collection, got %v", names)
	}
}

func TestCollection_AddQueryEntries(t *testing.T) {
	ctx := context.Background()
	col, err := newStore(t).Collection(ctx, "c")
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}

	if err := col.Add(ctx, []memory.Entry{
		entry(t, "alpha", "a.txt", "a.txt"),
		entry(t, "beta", "b.txt", "b.txt"),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if col.Count() != 2 {
		t.Fatalf("Expected 2 entries, got %d", col.Count())
	}

	// Limit larger than the collection is clamped.
	query, _ := mock.New(dims).Embed(ctx, "alpha", core.FlavorQuery)
	results, err := col.Query(ctx, query, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Document != "alpha" {
		t.Errorf("Expected exact match first, got %q", results[0].Document)
	}
	if results[0].Metadata.Source != "a.txt" || results[0].Metadata.Kind != memory.KindFile {
		t.Errorf("Metadata did not round-trip: %+v", results[0].Metadata)
	}

	entries, err := col.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestCollection_EmptyQuery(t *testing.T) {
	ctx := context.Background()
	col, _ := newStore(t).Collection(ctx, "empty")

	results, err := col.Query(ctx, make([]float32, dims), 3)
	if err != nil {
		t.Fatalf("Query on empty collection failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}

	entries, err := col.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries on empty collection failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestCollection_DeleteWhere(t *testing.T) {
	ctx := context.Background()
	col, _ := newStore(t).Collection(ctx, "c")

	if err := col.Add(ctx, []memory.Entry{
		entry(t, "one", "repo/a.go", "repo"),
		entry(t, "two", "repo/b.go", "repo"),
		entry(t, "three", "notes.md", "notes.md"),
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := col.DeleteWhere(ctx, nil); err == nil {
		t.Error("Expected empty filter to be rejected")
	}
	if err := col.DeleteWhere(ctx, map[string]string{memory.MetaOrigin: "repo"}); err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}
	if col.Count() != 1 {
		t.Errorf("Expected 1 entry left, got %d", col.Count())
	}
}

func TestCollection_RejectsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	col, _ := newStore(t).Collection(ctx, "c")

	noMeta := entry(t, "x", "x", "x")
	noMeta.Metadata.ScopeKey = ""
	if err := col.Add(ctx, []memory.Entry{noMeta}); err == nil {
		t.Error("Expected entry without scope key to be rejected")
	}

	wrongDims := entry(t, "y", "y", "y")
	wrongDims.Embedding = wrongDims.Embedding[:dims/2]
	if err := col.Add(ctx, []memory.Entry{wrongDims}); err == nil {
		t.Error("Expected entry with wrong dimensions to be rejected")
	}
}

func TestPersistentStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := chromem.New(chromem.Config{Path: dir, Dimensions: dims})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	col, _ := store.Collection(ctx, "user_bob_topic_rust")
	if err := col.Add(ctx, []memory.Entry{entry(t, "persisted", "p.md", "p.md")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	store.Close()

	reopened, err := chromem.New(chromem.Config{Path: dir, Dimensions: dims})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	names, _ := reopened.Collections(ctx)
	if len(names) != 1 || names[0] != "user_bob_topic_rust" {
		t.Fatalf("Expected persisted collection, got %v", names)
	}
	col, _ = reopened.Collection(ctx, "user_bob_topic_rust")
	if col.Count() != 1 {
		t.Errorf("Expected 1 persisted entry, got %d", col.Count())
	}
}
