package chromem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/cortex/memory"
)

// Config controls where the store keeps its data.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Dimensions is the embedding size in use. It is needed to enumerate a
	// collection, since chromem-go has no list-all call.
	Dimensions int
}

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db          *chromem.DB
	dims        int
	collections map[string]*Collection
	mu          sync.RWMutex
}

var _ memory.Store = (*ChromemStore)(nil)

// New creates a new chromem-based store.
func New(cfg Config) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", cfg.Path, err)
		}
		log.Printf("[CHROMEM] Opened persistent store at %s (%d collections)", cfg.Path, len(db.ListCollections()))
	}

	return &ChromemStore{
		db:          db,
		dims:        cfg.Dimensions,
		collections: make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection, creating it on first use.
func (s *ChromemStore) Collection(_ context.Context, name string) (memory.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	raw, err := s.db.GetOrCreateCollection(
		name,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	col = &Collection{col: raw, dims: s.dims}
	s.collections[name] = col
	return col, nil
}

// Collections lists every collection name, including ones loaded from disk.
func (s *ChromemStore) Collections(_ context.Context) ([]string, error) {
	all := s.db.ListCollections()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// Persistent chromem-go writes on every change, nothing to flush
	return nil
}

// Collection adapts a chromem-go collection to memory.Collection.
type Collection struct {
	col  *chromem.Collection
	dims int
}

var _ memory.Collection = (*Collection)(nil)

func (c *Collection) Name() string {
	return c.col.Name
}

func (c *Collection) Count() int {
	return c.col.Count()
}

// Add inserts entries in a single call.
func (c *Collection) Add(ctx context.Context, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if err := e.Metadata.Validate(); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s: embedding is required", e.ID)
		}
		if c.dims != 0 && len(e.Embedding) != c.dims {
			return fmt.Errorf("entry %s: embedding has %d dimensions, want %d", e.ID, len(e.Embedding), c.dims)
		}
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Document,
			Embedding: e.Embedding,
			Metadata:  e.Metadata.Map(),
		}
	}

	if err := c.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to %s: %w", c.col.Name, err)
	}
	return nil
}

// Query retrieves entries by vector similarity.
func (c *Collection) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Result, error) {
	results, err := c.query(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	out := make([]memory.Result, len(results))
	for i, r := range results {
		out[i] = memory.Result{Entry: toEntry(r), Similarity: r.Similarity}
	}
	return out, nil
}

// Entries enumerates the collection by querying with a unit basis vector
// for every stored document.
func (c *Collection) Entries(ctx context.Context) ([]memory.Entry, error) {
	if c.dims <= 0 {
		return nil, errors.New("chromem: embedding dimensions not configured")
	}
	probe := make([]float32, c.dims)
	probe[0] = 1

	results, err := c.query(ctx, probe, c.col.Count())
	if err != nil {
		return nil, err
	}

	entries := make([]memory.Entry, len(results))
	for i, r := range results {
		entries[i] = toEntry(r)
	}
	return entries, nil
}

// DeleteWhere removes every document whose metadata matches where.
func (c *Collection) DeleteWhere(ctx context.Context, where map[string]string) error {
	if len(where) == 0 {
		return errors.New("chromem: refusing to delete with an empty filter")
	}
	if err := c.col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", c.col.Name, err)
	}
	log.Printf("[CHROMEM] Deleted documents from %s where %v", c.col.Name, where)
	return nil
}

// query clamps limit to the collection size.
// chromem-go requires 0 < nResults <= collection size, and a concurrent
// delete can shrink the collection between the count and the query.
func (c *Collection) query(ctx context.Context, embedding []float32, limit int) ([]chromem.Result, error) {
	for attempt := 0; attempt < 3; attempt++ {
		n := min(limit, c.col.Count())
		if n <= 0 {
			return nil, nil
		}

		results, err := c.col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			return results, nil
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query %s: %w", c.col.Name, err)
		}
	}
	return nil, fmt.Errorf("chromem query %s: collection changed during query", c.col.Name)
}

func toEntry(r chromem.Result) memory.Entry {
	return memory.Entry{
		ID:        r.ID,
		Document:  r.Content,
		Embedding: r.Embedding,
		Metadata:  memory.MetadataFromMap(r.Metadata),
	}
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
