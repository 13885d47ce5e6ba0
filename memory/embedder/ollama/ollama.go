// Package ollama embeds text with a local Ollama instance.
package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory/embedder/internal/apiclient"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
)

// Config configures the Ollama embedder.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int

	// QueryPrefix and DocumentPrefix are prepended per flavor. They default
	// to the task prefixes nomic-embed-text was trained with.
	QueryPrefix    string
	DocumentPrefix string

	Timeout time.Duration
}

// OllamaEmbedder calls POST /api/embed.
type OllamaEmbedder struct {
	client   *apiclient.Client
	baseURL  string
	model    string
	dims     int
	queryPfx string
	docPfx   string
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates an Ollama embedder. No credential is needed.
func New(cfg Config) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 768 // nomic-embed-text
		if strings.HasPrefix(cfg.Model, "all-minilm") {
			cfg.Dimensions = 384
		}
	}
	if cfg.QueryPrefix == "" && cfg.DocumentPrefix == "" && strings.HasPrefix(cfg.Model, "nomic-embed") {
		cfg.QueryPrefix = "search_query: "
		cfg.DocumentPrefix = "search_document: "
	}
	return &OllamaEmbedder{
		client:   apiclient.New("ollama", cfg.Timeout, nil),
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		queryPfx: cfg.QueryPrefix,
		docPfx:   cfg.DocumentPrefix,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string, flavor core.Flavor) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, flavor)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, flavor core.Flavor) ([][]float32, error) {
	prefix := e.docPfx
	if flavor == core.FlavorQuery {
		prefix = e.queryPfx
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = prefix + t
	}

	var resp embedResponse
	if err := e.client.PostJSON(ctx, e.baseURL+"/api/embed", embedRequest{Model: e.model, Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, e.client.BadResponse("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }
