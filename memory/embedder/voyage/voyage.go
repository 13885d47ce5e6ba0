// Package voyage embeds text with the Voyage AI embeddings API, which
// distinguishes query and document inputs.
package voyage

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
	DefaultBaseURL    = "https://api.voyageai.com/v1"
	DefaultModel      = "voyage-3"
	DefaultDimensions = 1024
	DefaultBatchSize  = 128
)

// Config configures the Voyage embedder.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// VoyageEmbedder calls POST /embeddings.
type VoyageEmbedder struct {
	client    *apiclient.Client
	baseURL   string
	model     string
	dims      int
	batchSize int
}

type embedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// New creates a Voyage embedder. An API key is required.
func New(cfg Config) (*VoyageEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("voyage: %w: VOYAGE_API_KEY", core.ErrMissingCredential)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
	return &VoyageEmbedder{
		client:    apiclient.New("voyage", cfg.Timeout, map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}, nil
}

func (e *VoyageEmbedder) Embed(ctx context.Context, text string, flavor core.Flavor) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, flavor)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in chunks of the configured batch size.
func (e *VoyageEmbedder) EmbedBatch(ctx context.Context, texts []string, flavor core.Flavor) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], flavor)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *VoyageEmbedder) embed(ctx context.Context, texts []string, flavor core.Flavor) ([][]float32, error) {
	req := embedRequest{Input: texts, Model: e.model, InputType: inputType(flavor)}
	var resp embedResponse
	if err := e.client.PostJSON(ctx, e.baseURL+"/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, e.client.BadResponse("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (e *VoyageEmbedder) Dimensions() int { return e.dims }

func inputType(f core.Flavor) string {
	if f == core.FlavorQuery {
		return "query"
	}
	return "document"
}
