// Package openai embeds text with any OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory/embedder/internal/apiclient"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
	DefaultBatchSize  = 256
)

// Config configures the OpenAI embedder.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OpenAIEmbedder calls POST /embeddings. The API has no query/document
// distinction, so both flavors embed identically.
type OpenAIEmbedder struct {
	client    *apiclient.Client
	baseURL   string
	model     string
	dims      int
	batchSize int
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// New creates an OpenAI-compatible embedder. The key may be empty only when
// BaseURL points somewhere other than the public API.
func New(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, fmt.Errorf("openai: %w: OPENAI_API_KEY", core.ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &OpenAIEmbedder{
		client:    apiclient.New("openai", cfg.Timeout, headers),
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, flavor core.Flavor) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, flavor)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string, _ core.Flavor) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		chunk := texts[start:end]

		var resp embedResponse
		if err := e.client.PostJSON(ctx, e.baseURL+"/embeddings", embedRequest{Input: chunk, Model: e.model}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) != len(chunk) {
			return nil, e.client.BadResponse("got %d embeddings for %d inputs", len(resp.Data), len(chunk))
		}
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }
