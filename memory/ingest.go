package memory

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/becomeliminal/cortex/core"
	"github.com/bmatcuk/doublestar/v4"
)

// IngestReport summarizes one directory or repository ingestion.
type IngestReport struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Entries int `json:"entries"`
	Batches int `json:"batches"`
}

// IngestText stores one document under label, replacing whatever was
// previously ingested under the same label in this scope.
func (m *Manager) IngestText(ctx context.Context, scope core.Scope, content, label string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return core.Invalid("file", "a filename is required")
	}
	if strings.TrimSpace(content) == "" {
		return core.Invalid("file", "file is empty")
	}

	document := fileDocument(label, content)
	embedding, err := m.embedder.Embed(ctx, document, core.FlavorDocument)
	if err != nil {
		return fmt.Errorf("embed %s: %w", label, err)
	}

	col, err := m.ResolveCollection(ctx, scope)
	if err != nil {
		return fmt.Errorf("resolve collection: %w", err)
	}
	if err := m.replaceOrigin(ctx, col, scope, label); err != nil {
		return err
	}

	entry := NewEntry(document, embedding, Metadata{
		Source:   label,
		ScopeKey: scope.Key(),
		Origin:   label,
		Kind:     KindFile,
	})
	if err := col.Add(ctx, []Entry{entry}); err != nil {
		return fmt.Errorf("store %s: %w", label, err)
	}

	m.metrics.EntriesIngested(string(KindFile), 1)
	log.Printf("[MEMORY] Ingested %s into %s", label, col.Name())
	return nil
}

// IngestDirectory walks root and stores one entry per matching file.
// Entries previously ingested under label are replaced. A directory with no
// matching files is not an error and leaves the scope unchanged.
func (m *Manager) IngestDirectory(ctx context.Context, scope core.Scope, root, label string) (*IngestReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(label) == "" {
		label = root
	}
	return m.ingestTree(ctx, scope, root, label, KindRepo)
}

type chunk struct {
	document string
	source   string
}

func (m *Manager) ingestTree(ctx context.Context, scope core.Scope, root, label string, kind Kind) (*IngestReport, error) {
	chunks, report, err := m.collectChunks(root, label)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.Printf("[MEMORY] No matching files under %s", label)
		return report, nil
	}

	docs := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = c.document
	}
	embeddings, err := m.embedder.EmbedBatch(ctx, docs, core.FlavorDocument)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", label, err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("embed %s: got %d vectors for %d documents", label, len(embeddings), len(docs))
	}

	col, err := m.ResolveCollection(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolve collection: %w", err)
	}
	if err := m.replaceOrigin(ctx, col, scope, label); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = NewEntry(c.document, embeddings[i], Metadata{
			Source:   c.source,
			ScopeKey: scope.Key(),
			Origin:   label,
			Kind:     kind,
		})
	}
	for start := 0; start < len(entries); start += insertBatchSize {
		end := min(start+insertBatchSize, len(entries))
		if err := col.Add(ctx, entries[start:end]); err != nil {
			return nil, fmt.Errorf("store batch %d of %s: %w", report.Batches+1, label, err)
		}
		report.Batches++
		report.Entries += end - start
	}

	m.metrics.EntriesIngested(string(kind), report.Entries)
	log.Printf("[MEMORY] Ingested %d files from %s into %s (%d skipped, %d batches)",
		report.Files, label, col.Name(), report.Skipped, report.Batches)
	return report, nil
}

// replaceOrigin removes entries a previous ingestion of label left in the scope.
func (m *Manager) replaceOrigin(ctx context.Context, col Collection, scope core.Scope, label string) error {
	if col.Count() == 0 {
		return nil
	}
	err := col.DeleteWhere(ctx, map[string]string{
		MetaScopeKey: scope.Key(),
		MetaOrigin:   label,
	})
	if err != nil {
		return fmt.Errorf("clear previous %s: %w", label, err)
	}
	return nil
}

// collectChunks reads every matching file under root in lexical order.
// Unreadable and non-UTF-8 files are skipped and counted.
func (m *Manager) collectChunks(root, label string) ([]chunk, *IngestReport, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, core.Invalid("path", root+" is not a directory")
	}

	cfg := m.config.Ingest
	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}
	excludedDirs := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		excludedDirs[d] = true
	}

	report := &IngestReport{}
	var chunks []chunk
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("[MEMORY] Skipping %s: %v", path, err)
			report.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (excludedDirs[d.Name()] || excludedByGlob(cfg.ExcludeGlobs, rel)) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !extensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if excludedByGlob(cfg.ExcludeGlobs, rel) {
			return nil
		}

		if cfg.MaxFileBytes > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > cfg.MaxFileBytes {
				log.Printf("[MEMORY] Skipping %s: %d bytes exceeds limit", rel, fi.Size())
				report.Skipped++
				return nil
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[MEMORY] Skipping %s: %v", rel, err)
			report.Skipped++
			return nil
		}
		if !utf8.Valid(data) {
			log.Printf("[MEMORY] Skipping %s: not valid UTF-8", rel)
			report.Skipped++
			return nil
		}

		chunks = append(chunks, chunk{
			document: chunkDocument(rel, label, string(data)),
			source:   chunkSource(label, rel),
		})
		report.Files++
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return chunks, report, nil
}

func excludedByGlob(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
