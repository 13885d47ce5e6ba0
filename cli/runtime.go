package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/becomeliminal/cortex/catalog"
	"github.com/becomeliminal/cortex/config"
	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/engine"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/memory/embedder/cached"
	"github.com/becomeliminal/cortex/memory/embedder/mock"
	"github.com/becomeliminal/cortex/memory/embedder/ollama"
	"github.com/becomeliminal/cortex/memory/embedder/openai"
	"github.com/becomeliminal/cortex/memory/embedder/voyage"
	"github.com/becomeliminal/cortex/memory/store/chromem"
	"github.com/becomeliminal/cortex/metrics"
)

// runtime is the wired service graph shared by the commands.
type runtime struct {
	cfg     *config.Config
	catalog *catalog.SQLiteCatalog
	manager *memory.Manager
	metrics *metrics.Metrics
	closers []func() error
}

type runtimeOptions struct {
	// generate requires a working generative provider.
	generate bool
	// syncPersistence stores turn summaries before answering returns.
	syncPersistence bool
	// metrics enables Prometheus instrumentation.
	metrics bool
}

// openRuntime loads configuration and wires store, catalog, embedder,
// engine and manager.
func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	validate := cfg.ValidateStorage
	if opts.generate {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	if opts.metrics {
		rt.metrics = metrics.New()
	}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	embedder, err := newEmbedder(cfg, rt)
	if err != nil {
		return nil, err
	}
	if cfg.Embed.CacheSize > 0 {
		c, err := cached.New(embedder, cfg.Embed.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		rt.closers = append(rt.closers, func() error { c.Close(); return nil })
		embedder = c
	}

	store, err := chromem.New(chromem.Config{Path: cfg.DBDir, Dimensions: embedder.Dimensions()})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	rt.catalog = cat
	rt.closers = append(rt.closers, cat.Close)
	if _, err := cat.RecoverJobs(ctx); err != nil {
		log.Printf("[CATALOG] %v", err)
	}

	var generator memory.Generator = missingGenerator{}
	if cfg.AnthropicAPIKey != "" {
		generator, err = engine.New(cfg.AnthropicAPIKey,
			engine.WithModel(cfg.Model),
			engine.WithMaxTokens(int64(cfg.MaxTokens)),
			engine.WithTimeout(cfg.ProviderTimeout),
		)
		if err != nil {
			return nil, err
		}
	}

	mc := cfg.ManagerConfig()
	if opts.syncPersistence {
		mc.SyncPersistence = true
	}
	rt.manager = memory.NewManager(store, embedder, generator, mc,
		memory.WithCatalog(cat),
		memory.WithJobStore(cat),
		memory.WithMetrics(rt.metrics),
	)

	ok = true
	return rt, nil
}

// withRuntime opens the runtime, runs fn and closes the runtime whether or
// not fn succeeds, so the catalog is closed and jobs drain on error paths.
func withRuntime(ctx context.Context, opts runtimeOptions, fn func(rt *runtime) error) (err error) {
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()
	return fn(rt)
}

// Close waits for background persistence and jobs, then releases resources
// in reverse order of acquisition.
func (rt *runtime) Close() error {
	if rt.manager != nil {
		rt.manager.Wait()
		rt.manager.Jobs().Wait()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newEmbedder(cfg *config.Config, rt *runtime) (memory.Embedder, error) {
	e := cfg.Embed
	switch e.Provider {
	case config.EmbedVoyage:
		return voyage.New(voyage.Config{
			APIKey:     e.VoyageAPIKey,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Timeout:    cfg.ProviderTimeout,
		})
	case config.EmbedOpenAI:
		return openai.New(openai.Config{
			APIKey:     e.OpenAIAPIKey,
			BaseURL:    e.OpenAIBaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Timeout:    cfg.ProviderTimeout,
		})
	case config.EmbedOllama:
		return ollama.New(ollama.Config{
			BaseURL:    ollamaURL(e.OllamaHost),
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Timeout:    cfg.ProviderTimeout,
		}), nil
	case config.EmbedMock:
		return mock.New(e.Dimensions), nil
	case config.EmbedONNX:
		emb, err := newONNXEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		if c, ok := emb.(io.Closer); ok {
			rt.closers = append(rt.closers, c.Close)
		}
		return emb, nil
	}
	return nil, core.Invalid("embed.provider", fmt.Sprintf("unknown embedding provider %q", e.Provider))
}

// ollamaURL accepts OLLAMA_HOST in the bare host:port form Ollama itself uses.
func ollamaURL(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// missingGenerator stands in when no Anthropic key is configured, for
// commands that only ingest or list.
type missingGenerator struct{}

func (missingGenerator) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("anthropic: %w: ANTHROPIC_API_KEY", core.ErrMissingCredential)
}
