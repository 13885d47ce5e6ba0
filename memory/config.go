package memory

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// contextResults is the maximum number of entries retrieved per turn.
	contextResults = 3

	// insertBatchSize caps the entries written per store call during ingestion.
	insertBatchSize = 100

	// DefaultMaxCollectionName is the longest collection name the store accepts.
	DefaultMaxCollectionName = 63
)

// Config holds Manager configuration.
type Config struct {
	// MaxCollectionName caps derived collection names. Longer names are
	// truncated and suffixed with a hash of the full scope key.
	// Default: 63
	MaxCollectionName int

	// SyncPersistence stores the turn summary before ProcessTurn returns.
	// Default: false (summaries are written in the background).
	SyncPersistence bool

	// PersistTimeout bounds the background summarize-embed-store sequence.
	// Default: 2m
	PersistTimeout time.Duration

	// ScratchDir holds temporary clones. Empty means the OS temp dir.
	ScratchDir string

	// CloneTimeout bounds a single repository clone.
	// Default: 5m
	CloneTimeout time.Duration

	Ingest IngestConfig
}

// IngestConfig controls which files a directory walk picks up.
type IngestConfig struct {
	// Extensions is the allow-list of file suffixes, including the dot.
	Extensions []string

	// ExcludeDirs are directory names skipped wherever they appear.
	ExcludeDirs []string

	// ExcludeGlobs are doublestar patterns matched against slash-separated
	// paths relative to the walk root.
	ExcludeGlobs []string

	// MaxFileBytes skips larger files. Zero disables the limit.
	// Default: 1 MiB
	MaxFileBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxCollectionName: DefaultMaxCollectionName,
		PersistTimeout:    2 * time.Minute,
		CloneTimeout:      5 * time.Minute,
		Ingest:            DefaultIngestConfig(),
	}
}

// DefaultIngestConfig returns the source-code allow-list used for repositories.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Extensions: []string{
			".py", ".js", ".ts", ".html", ".css", ".java", ".c", ".cpp", ".h", ".hpp",
			".rs", ".go", ".php", ".rb", ".swift", ".kt", ".scala", ".md",
		},
		ExcludeDirs:  []string{"__pycache__", "node_modules", ".git", ".vscode", "venv", ".idea"},
		MaxFileBytes: 1 << 20,
	}
}

// Validate rejects malformed glob patterns up front so walks never fail midway.
func (c IngestConfig) Validate() error {
	for _, pattern := range c.ExcludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude glob %q", pattern)
		}
	}
	return nil
}
