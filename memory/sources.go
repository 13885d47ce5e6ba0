package memory

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"

	"github.com/becomeliminal/cortex/core"
)

// DefaultTopic is returned by ListTopics when nothing has been stored yet.
const DefaultTopic = "general"

// SourceType distinguishes remote repositories from local files in listings.
type SourceType string

const (
	SourceFile SourceType = "file"
	SourceRepo SourceType = "repo"
)

// SourceView is one row of a source listing.
type SourceView struct {
	ID   int        `json:"id"`
	Name string     `json:"name"`
	Type SourceType `json:"type"`
}

// ListSources returns the distinct, sorted source labels stored in the scope,
// conversation summaries included. A scope with nothing stored yields an empty,
// non-nil slice. Listing never creates the collection or registers the scope.
func (m *Manager) ListSources(ctx context.Context, scope core.Scope) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	sources := []string{}
	name := CollectionName(scope, m.config.MaxCollectionName)
	names, err := m.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if !slices.Contains(names, name) {
		return sources, nil
	}

	col, err := m.store.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	if col.Count() == 0 {
		return sources, nil
	}
	entries, err := col.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", col.Name(), err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		src := e.Metadata.Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

// SourceViews converts labels into display rows. Labels beginning with
// "http" are repositories and display without their github.com prefix.
func SourceViews(sources []string) []SourceView {
	views := make([]SourceView, 0, len(sources))
	for i, src := range sources {
		view := SourceView{ID: i + 1, Name: src, Type: SourceFile}
		if strings.HasPrefix(src, "http") {
			view.Type = SourceRepo
			if _, rest, ok := strings.Cut(src, "github.com/"); ok {
				view.Name = rest
			}
		}
		views = append(views, view)
	}
	return views
}

// ListTopics returns the distinct topics across all scopes, sorted.
// The catalog is authoritative when configured; collection names are the fallback.
func (m *Manager) ListTopics(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var topics []string
	add := func(topic string) {
		if topic != "" && !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	if m.catalog != nil {
		records, err := m.catalog.Scopes(ctx)
		if err != nil {
			log.Printf("[MEMORY] Failed to read scope catalog, falling back to collections: %v", err)
		}
		for _, rec := range records {
			add(rec.Scope.Topic)
		}
	}
	if len(topics) == 0 {
		names, err := m.store.Collections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		for _, name := range names {
			if topic, ok := topicFromCollection(name); ok {
				add(topic)
			}
		}
	}

	if len(topics) == 0 {
		return []string{DefaultTopic}, nil
	}
	sort.Strings(topics)
	return topics, nil
}
