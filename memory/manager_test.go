package memory_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/memory/embedder/mock"
	"github.com/becomeliminal/cortex/memory/store/chromem"
)

const testDims = 64

// MockGenerator answers deterministically and records every prompt.
type MockGenerator struct {
	mu          sync.Mutex
	prompts     []string
	failAnswer  error
	failSummary error
}

func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if strings.HasPrefix(prompt, "Concisely summarize") {
		if g.failSummary != nil {
			return "", g.failSummary
		}
		user := strings.SplitN(strings.TrimPrefix(prompt, "Concisely summarize the following exchange in the third person.\nUSER: "), "\n", 2)[0]
		return "  The user asked about " + user + ".  \n", nil
	}
	if g.failAnswer != nil {
		return "", g.failAnswer
	}
	return fmt.Sprintf("answer(%d)", len(prompt)), nil
}

func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type fixture struct {
	manager   *memory.Manager
	store     *chromem.ChromemStore
	embedder  *mock.MockEmbedder
	generator *MockGenerator
}

func newFixture(t *testing.T, config *memory.Config, opts ...memory.Option) *fixture {
	t.Helper()
	store, err := chromem.New(chromem.Config{Dimensions: testDims})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if config == nil {
		config = memory.DefaultConfig()
		config.SyncPersistence = true
	}
	f := &fixture{
		store:     store,
		embedder:  mock.New(testDims),
		generator: &MockGenerator{},
	}
	f.manager = memory.NewManager(f.store, f.embedder, f.generator, config, opts...)
	return f
}

func (f *fixture) count(t *testing.T, scope core.Scope) int {
	t.Helper()
	col, err := f.manager.ResolveCollection(context.Background(), scope)
	if err != nil {
		t.Fatalf("ResolveCollection failed: %v", err)
	}
	return col.Count()
}

func TestProcessTurn_EmptyScopeUsesSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	scope := core.NewScope("alice", "go")

	answer, err := f.manager.ProcessTurn(ctx, scope, "What is a goroutine?")
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if !strings.HasPrefix(answer, "answer(") {
		t.Errorf("Unexpected answer %q", answer)
	}

	prompts := f.generator.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("Expected answer and summary prompts, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "### RELEVANT CONTEXT ###\n"+memory.NoContextSentinel+"\n") {
		t.Errorf("Expected sentinel context in prompt:\n%s", prompts[0])
	}
	if !strings.HasSuffix(prompts[0], "### USER'S QUESTION ###\nWhat is a goroutine?\n") {
		t.Errorf("Expected question at end of prompt:\n%s", prompts[0])
	}
	if prompts[1] != "Concisely summarize the following exchange in the third person.\nUSER: What is a goroutine?\nAI: "+answer+"\nSUMMARY:" {
		t.Errorf("Unexpected summary prompt:\n%s", prompts[1])
	}

	if n := f.count(t, scope); n != 1 {
		t.Fatalf("Expected exactly one stored summary, got %d", n)
	}
	col, _ := f.manager.ResolveCollection(ctx, scope)
	entries, err := col.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	got := entries[0]
	if got.Document != "The user asked about What is a goroutine?." {
		t.Errorf("Expected trimmed summary, got %q", got.Document)
	}
	if got.Metadata.Source != memory.SummarySource || got.Metadata.ScopeKey != scope.Key() || got.Metadata.Kind != memory.KindSummary {
		t.Errorf("Unexpected summary metadata: %+v", got.Metadata)
	}
}

func TestProcessTurn_BackgroundPersistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.DefaultConfig())
	scope := core.NewScope("alice", "go")

	if _, err := f.manager.ProcessTurn(ctx, scope, "first"); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	f.manager.Wait()

	if n := f.count(t, scope); n != 1 {
		t.Fatalf("Expected one summary after Wait, got %d", n)
	}
}

func TestProcessTurn_UsesAtMostThreeEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	scope := core.NewScope("alice", "go")

	for i := 0; i < 5; i++ {
		if err := f.manager.IngestText(ctx, scope, fmt.Sprintf("content %d", i), fmt.Sprintf("f%d.txt", i)); err != nil {
			t.Fatalf("IngestText failed: %v", err)
		}
	}
	if _, err := f.manager.ProcessTurn(ctx, scope, "content 2"); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}

	prompt := f.generator.Prompts()[0]
	if n := strings.Count(prompt, "--- Content from file:"); n != 3 {
		t.Errorf("Expected 3 retrieved documents, got %d", n)
	}
	if n := strings.Count(prompt, "\n---\n"); n != 2 {
		t.Errorf("Expected 2 separators, got %d", n)
	}
}

func TestProcessTurn_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := core.NewScope("alice", "go")
	b := core.NewScope("alice", "rust")
	c := core.NewScope("bob", "go")

	if err := f.manager.IngestText(ctx, a, "secret notes", "secret.md"); err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	for _, other := range []core.Scope{b, c} {
		before := len(f.generator.Prompts())
		if _, err := f.manager.ProcessTurn(ctx, other, "secret notes"); err != nil {
			t.Fatalf("ProcessTurn failed: %v", err)
		}
		prompt := f.generator.Prompts()[before]
		if strings.Contains(prompt, "--- Content from file: secret.md") || !strings.Contains(prompt, memory.NoContextSentinel) {
			t.Errorf("Scope %s saw another scope's content:\n%s", other, prompt)
		}
		sources, err := f.manager.ListSources(ctx, other)
		if err != nil {
			t.Fatalf("ListSources failed: %v", err)
		}
		if !reflect.DeepEqual(sources, []string{memory.SummarySource}) {
			t.Errorf("Expected only the turn summary in %s, got %v", other, sources)
		}
	}
}

func TestProcessTurn_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.manager.ProcessTurn(ctx, core.NewScope("alice", " "), "hi")
	if !errors.Is(err, core.ErrInvalidScope) {
		t.Errorf("Expected ErrInvalidScope, got %v", err)
	}
	if core.HTTPStatus(err) != 400 {
		t.Errorf("Expected 400 for invalid scope, got %d", core.HTTPStatus(err))
	}

	_, err = f.manager.ProcessTurn(ctx, core.NewScope("alice", "go"), "   ")
	if !errors.Is(err, core.ErrEmptyPrompt) {
		t.Errorf("Expected ErrEmptyPrompt, got %v", err)
	}
	if len(f.generator.Prompts()) != 0 {
		t.Error("Expected no provider calls for invalid input")
	}
}

func TestProcessTurn_GenerationFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.generator.failAnswer = core.NewProviderError("anthropic", "messages", 503, errors.New("overloaded"))
	scope := core.NewScope("alice", "go")

	_, err := f.manager.ProcessTurn(ctx, scope, "hi")
	var perr *core.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if n := f.count(t, scope); n != 0 {
		t.Errorf("Expected nothing stored after failure, got %d", n)
	}
}

func TestProcessTurn_SummaryFailureKeepsAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.generator.failSummary = errors.New("boom")
	scope := core.NewScope("alice", "go")

	answer, err := f.manager.ProcessTurn(ctx, scope, "hi")
	if err != nil {
		t.Fatalf("Expected answer despite summary failure, got %v", err)
	}
	if answer == "" {
		t.Error("Expected non-empty answer")
	}
	if n := f.count(t, scope); n != 0 {
		t.Errorf("Expected no summary stored, got %d", n)
	}
}

func TestProcessTurn_Deterministic(t *testing.T) {
	ctx := context.Background()
	scope := core.NewScope("alice", "go")

	run := func() (string, string) {
		f := newFixture(t, nil)
		if err := f.manager.IngestText(ctx, scope, "channels are typed conduits", "chan.md"); err != nil {
			t.Fatalf("IngestText failed: %v", err)
		}
		answer, err := f.manager.ProcessTurn(ctx, scope, "what are channels?")
		if err != nil {
			t.Fatalf("ProcessTurn failed: %v", err)
		}
		col, _ := f.manager.ResolveCollection(ctx, scope)
		entries, _ := col.Entries(ctx)
		for _, e := range entries {
			if e.Metadata.Kind == memory.KindSummary {
				return answer, e.Document
			}
		}
		t.Fatal("Expected a stored summary")
		return "", ""
	}

	a1, s1 := run()
	a2, s2 := run()
	if a1 != a2 || s1 != s2 {
		t.Errorf("Expected identical results, got (%q, %q) and (%q, %q)", a1, s1, a2, s2)
	}
}
