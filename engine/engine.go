// Package engine generates text with the Anthropic Messages API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/cortex/core"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 60 * time.Second
	DefaultRetries   = 2
)

// Engine is a single-turn text generator backed by Claude.
// It satisfies memory.Generator.
type Engine struct {
	client       *anthropic.Client
	model        string
	maxTokens    int64
	timeout      time.Duration
	systemPrompt string
	clientOpts   []option.RequestOption
}

// Option configures the engine.
type Option func(*Engine)

// WithModel sets the Claude model.
func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithMaxTokens sets the maximum response tokens.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTimeout bounds each generation call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSystemPrompt sets a system prompt sent with every call.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) {
		e.systemPrompt = p
	}
}

// WithClientOptions passes extra request options to the Anthropic client,
// such as option.WithBaseURL or option.WithMaxRetries.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(e *Engine) {
		e.clientOpts = append(e.clientOpts, opts...)
	}
}

// New creates an engine authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w: ANTHROPIC_API_KEY", core.ErrMissingCredential)
	}
	e := &Engine{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(DefaultRetries),
	}, e.clientOpts...)
	client := anthropic.NewClient(clientOpts...)
	e.client = &client
	return e, nil
}

// Model returns the configured model name.
func (e *Engine) Model() string {
	return e.model
}

// Generate sends prompt as a single user message and returns the concatenated text blocks.
func (e *Engine) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if e.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: e.systemPrompt},
		}
	}

	start := time.Now()
	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		perr := classify(err)
		log.Printf("[ENGINE] Claude API error (%s): %v", perr.Kind, err)
		return "", perr
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &core.ProviderError{
			Provider: "anthropic",
			Op:       "messages",
			Kind:     core.ProviderBadResponse,
			Err:      errors.New("response contained no text"),
		}
	}

	log.Printf("[ENGINE] Claude responded in %s (%d in / %d out tokens)",
		time.Since(start).Round(time.Millisecond), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return text.String(), nil
}

// classify maps SDK errors onto provider error kinds.
func classify(err error) *core.ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.NewProviderError("anthropic", "messages", apiErr.StatusCode, err)
	}
	return core.NewProviderError("anthropic", "messages", 0, err)
}
