package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/becomeliminal/cortex/core"
)

// clearEnv unsets every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORTEX_DB_DIR", "CORTEX_CATALOG_PATH", "CORTEX_SCRATCH_DIR",
		"ANTHROPIC_API_KEY", "CORTEX_MODEL", "CORTEX_MAX_TOKENS", "CORTEX_PROVIDER_TIMEOUT",
		"CORTEX_EMBED_PROVIDER", "CORTEX_EMBED_MODEL", "CORTEX_EMBED_DIMENSIONS", "CORTEX_EMBED_CACHE_SIZE",
		"VOYAGE_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OLLAMA_HOST",
		"CORTEX_ONNX_MODEL", "CORTEX_ONNX_TOKENIZER", "ONNXRUNTIME_LIB",
		"CORTEX_ALLOWED_ORIGINS", "CORTEX_DEFAULT_OWNER", "CORTEX_MAX_UPLOAD_BYTES",
		"CORTEX_CLONE_TIMEOUT", "CORTEX_SYNC_PERSISTENCE", "CORTEX_JOB_RETENTION", "CORTEX_CONFIG",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.Addr() != ":8080" {
		t.Errorf("Expected port 8080, got %q", cfg.Port)
	}
	if cfg.DefaultOwner != "default" {
		t.Errorf("Expected default owner, got %q", cfg.DefaultOwner)
	}
	if cfg.CatalogPath != filepath.Join("db", "catalog.db") {
		t.Errorf("Expected catalog under db dir, got %q", cfg.CatalogPath)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("Expected 10 MiB upload limit, got %d", cfg.MaxUploadBytes)
	}
	if len(cfg.Ingest.Extensions) == 0 {
		t.Error("Expected default extension allow-list")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("CORTEX_EMBED_PROVIDER", "Ollama")
	t.Setenv("CORTEX_PROVIDER_TIMEOUT", "15s")
	t.Setenv("CORTEX_MAX_TOKENS", "not-a-number")
	t.Setenv("CORTEX_ALLOWED_ORIGINS", "http://localhost:3000, http://example.com")
	t.Setenv("CORTEX_SYNC_PERSISTENCE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.Embed.Provider != EmbedOllama {
		t.Errorf("Unexpected overrides: %+v", cfg)
	}
	if cfg.ProviderTimeout != 15*time.Second {
		t.Errorf("Expected 15s timeout, got %s", cfg.ProviderTimeout)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("Expected malformed int to keep default, got %d", cfg.MaxTokens)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://example.com" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.ManagerConfig().SyncPersistence {
		t.Error("Expected sync persistence to reach the manager config")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cortex.yaml")
	yamlDoc := `
port: "7000"
db_dir: /var/lib/cortex
clone_timeout: 90s
embed:
  provider: mock
  dimensions: 64
ingest:
  extensions: [".go", ".md"]
  exclude_globs: ["**/testdata/**"]
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CORTEX_CONFIG", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "7001" {
		t.Errorf("Expected env to win over YAML, got %q", cfg.Port)
	}
	if cfg.CatalogPath != "/var/lib/cortex/catalog.db" {
		t.Errorf("Unexpected catalog path %q", cfg.CatalogPath)
	}
	if cfg.CloneTimeout != 90*time.Second || cfg.Embed.Dimensions != 64 {
		t.Errorf("Unexpected YAML values %+v", cfg)
	}
	mc := cfg.ManagerConfig()
	if len(mc.Ingest.Extensions) != 2 || mc.Ingest.ExcludeGlobs[0] != "**/testdata/**" {
		t.Errorf("Unexpected ingest config %+v", mc.Ingest)
	}
	// YAML did not touch exclude_dirs, so the defaults survive.
	if len(mc.Ingest.ExcludeDirs) == 0 {
		t.Error("Expected default exclude dirs to survive")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("port: [unterminated"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing anthropic key", func(c *Config) { c.AnthropicAPIKey = "" }, core.ErrMissingCredential},
		{"missing voyage key", func(c *Config) { c.Embed.Provider = EmbedVoyage }, core.ErrMissingCredential},
		{"openai key", func(c *Config) { c.Embed.Provider = EmbedOpenAI; c.Embed.OpenAIAPIKey = "sk" }, nil},
		{"openai local", func(c *Config) { c.Embed.Provider = EmbedOpenAI; c.Embed.OpenAIBaseURL = "http://localhost:1234/v1" }, nil},
		{"unknown provider", func(c *Config) { c.Embed.Provider = "cohere" }, errValidation},
		{"onnx without model", func(c *Config) { c.Embed.Provider = EmbedONNX }, errValidation},
		{"bad glob", func(c *Config) { c.Ingest.ExcludeGlobs = []string{"[unclosed"} }, errAny},
		{"mock", func(c *Config) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.AnthropicAPIKey = "sk-ant"
			cfg.Embed.Provider = EmbedMock
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == nil && err != nil:
				t.Errorf("Expected no error, got %v", err)
			case tt.wantErr == errAny && err == nil:
				t.Error("Expected an error")
			case tt.wantErr == errValidation:
				var verr *core.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Expected a validation error, got %v", err)
				}
			case tt.wantErr != nil && tt.wantErr != errAny && !errors.Is(err, tt.wantErr):
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

var (
	errAny        = errors.New("any error")
	errValidation = errors.New("validation error")
)

func TestValidateStorage_NoAnthropicKey(t *testing.T) {
	cfg := Default()
	cfg.Embed.Provider = EmbedMock
	if err := cfg.ValidateStorage(); err != nil {
		t.Errorf("Expected storage-only validation to pass, got %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, core.ErrMissingCredential) {
		t.Errorf("Expected full validation to require the key, got %v", err)
	}
}
