package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/metrics"
)

// Manager answers conversational turns against scoped memory and ingests
// external content into it.
//
// Features:
//   - Per-scope collections (owner and topic never leak across scopes)
//   - Top-3 similarity retrieval with a sentinel for empty scopes
//   - Background summarization of every answered turn
//   - Idempotent ingestion of files, directories and repositories
type Manager struct {
	store     Store
	embedder  Embedder // Internal: callers never see this
	generator Generator
	catalog   Catalog
	cloner    Cloner
	jobs      *Jobs
	metrics   *metrics.Metrics
	config    *Config

	// registered caches collection names already recorded in the catalog,
	// mapping each to the scope key that claimed it.
	registered sync.Map

	persisting sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithCatalog records scope bindings so topics survive name truncation.
func WithCatalog(c Catalog) Option {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithCloner replaces the git-based repository cloner.
func WithCloner(c Cloner) Option {
	return func(m *Manager) {
		m.cloner = c
	}
}

// WithJobStore persists background job state. Defaults to an in-memory store.
func WithJobStore(s JobStore) Option {
	return func(m *Manager) {
		m.jobs = NewJobs(s, m.metrics)
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a new Manager.
func NewManager(store Store, embedder Embedder, generator Generator, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Manager{
		store:     store,
		embedder:  embedder,
		generator: generator,
		config:    config,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cloner == nil {
		m.cloner = &GitCloner{Timeout: config.CloneTimeout}
	}
	if m.jobs == nil {
		m.jobs = NewJobs(NewMemoryJobStore(), m.metrics)
	} else {
		m.jobs.metrics = m.metrics
	}
	return m
}

// Jobs returns the background ingestion runner.
func (m *Manager) Jobs() *Jobs {
	return m.jobs
}

// ProcessTurn answers prompt using the scope's memory.
//
// The summary of the exchange is stored after the answer is returned unless
// Config.SyncPersistence is set. A failure while storing the summary is logged
// and never affects the returned answer.
func (m *Manager) ProcessTurn(ctx context.Context, scope core.Scope, prompt string) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", &core.ValidationError{Field: "prompt", Msg: "prompt is required", Err: core.ErrEmptyPrompt}
	}
	start := time.Now()

	col, err := m.ResolveCollection(ctx, scope)
	if err != nil {
		m.metrics.TurnFailed()
		return "", fmt.Errorf("resolve collection: %w", err)
	}

	relevant, err := m.retrieve(ctx, col, prompt)
	if err != nil {
		m.recordFailure(err)
		return "", err
	}

	answer, err := m.generator.Generate(ctx, answerPrompt(relevant, prompt))
	if err != nil {
		m.recordFailure(err)
		return "", fmt.Errorf("generate answer: %w", err)
	}
	m.metrics.TurnCompleted(time.Since(start))
	log.Printf("[MEMORY] Answered turn for %s: %q", scope, truncateLog(prompt, 50))

	persistCtx := context.WithoutCancel(ctx)
	if m.config.SyncPersistence {
		if err := m.persistTurn(persistCtx, scope, col, prompt, answer); err != nil {
			log.Printf("[MEMORY] Failed to store turn summary for %s: %v", scope, err)
		}
		return answer, nil
	}

	m.persisting.Add(1)
	go func() {
		defer m.persisting.Done()
		if err := m.persistTurn(persistCtx, scope, col, prompt, answer); err != nil {
			log.Printf("[MEMORY] Failed to store turn summary for %s: %v", scope, err)
		}
	}()
	return answer, nil
}

// Wait blocks until every background summary write has finished.
func (m *Manager) Wait() {
	m.persisting.Wait()
}

// retrieve returns the joined documents of the nearest entries, or the
// sentinel when the collection is empty.
func (m *Manager) retrieve(ctx context.Context, col Collection, prompt string) (string, error) {
	count := col.Count()
	if count == 0 {
		log.Printf("[MEMORY] No entries in %s, using empty context", col.Name())
		return NoContextSentinel, nil
	}

	embedding, err := m.embedder.Embed(ctx, prompt, core.FlavorQuery)
	if err != nil {
		return "", fmt.Errorf("embed prompt: %w", err)
	}

	results, err := col.Query(ctx, embedding, min(contextResults, count))
	if err != nil {
		return "", fmt.Errorf("query %s: %w", col.Name(), err)
	}
	log.Printf("[MEMORY] Retrieved %d entries from %s", len(results), col.Name())
	if len(results) == 0 {
		return NoContextSentinel, nil
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Document
	}
	return strings.Join(docs, contextSeparator), nil
}

// persistTurn summarizes the exchange and stores the summary as one entry.
func (m *Manager) persistTurn(ctx context.Context, scope core.Scope, col Collection, prompt, answer string) error {
	if m.config.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.PersistTimeout)
		defer cancel()
	}

	summary, err := m.generator.Generate(ctx, summaryPrompt(prompt, answer))
	if err != nil {
		m.metrics.PersistFailed("summarize")
		return fmt.Errorf("summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)

	embedding, err := m.embedder.Embed(ctx, summary, core.FlavorDocument)
	if err != nil {
		m.metrics.PersistFailed("embed")
		return fmt.Errorf("embed summary: %w", err)
	}

	entry := NewEntry(summary, embedding, Metadata{
		Source:   SummarySource,
		ScopeKey: scope.Key(),
		Origin:   SummarySource,
		Kind:     KindSummary,
	})
	if err := col.Add(ctx, []Entry{entry}); err != nil {
		m.metrics.PersistFailed("store")
		return fmt.Errorf("store summary: %w", err)
	}

	log.Printf("[MEMORY]   Stored summary %s in %s", entry.ID, col.Name())
	return nil
}

// ResolveCollection maps a scope to its collection, creating it on first use.
// Concurrent calls for the same scope return the same collection.
func (m *Manager) ResolveCollection(ctx context.Context, scope core.Scope) (Collection, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	name := CollectionName(scope, m.config.MaxCollectionName)

	col, err := m.store.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	m.register(ctx, name, scope)
	return col, nil
}

// register records the name-to-scope binding once per process. Collisions
// are logged; they never block the request.
func (m *Manager) register(ctx context.Context, name string, scope core.Scope) {
	key := scope.Key()
	if prev, loaded := m.registered.LoadOrStore(name, key); loaded {
		if prev.(string) != key {
			log.Printf("[MEMORY] WARNING: collection %s is shared by scopes %q and %q", name, prev, key)
		}
		return
	}
	if m.catalog == nil {
		return
	}

	err := m.catalog.RegisterScope(ctx, ScopeRecord{Collection: name, Scope: scope, CreatedAt: time.Now().UTC()})
	switch {
	case errors.Is(err, core.ErrScopeCollision):
		log.Printf("[MEMORY] WARNING: %v", err)
	case err != nil:
		m.registered.Delete(name)
		log.Printf("[MEMORY] Failed to register scope %s: %v", scope, err)
	}
}

func (m *Manager) recordFailure(err error) {
	m.metrics.TurnFailed()
	var perr *core.ProviderError
	if errors.As(err, &perr) {
		m.metrics.ProviderError(perr.Provider, string(perr.Kind))
	}
}
