// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
)

// Embedding providers.
const (
	EmbedVoyage = "voyage"
	EmbedOpenAI = "openai"
	EmbedOllama = "ollama"
	EmbedONNX   = "onnx"
	EmbedMock   = "mock"
)

// Config holds all application configuration.
type Config struct {
	Port        string `yaml:"port"`
	DBDir       string `yaml:"db_dir"`
	CatalogPath string `yaml:"catalog_path"`
	ScratchDir  string `yaml:"scratch_dir"`

	// Credentials only come from the environment.
	AnthropicAPIKey string `yaml:"-"`

	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	Embed EmbedConfig `yaml:"embed"`

	AllowedOrigins  []string      `yaml:"allowed_origins"`
	DefaultOwner    string        `yaml:"default_owner"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CloneTimeout    time.Duration `yaml:"clone_timeout"`
	SyncPersistence bool          `yaml:"sync_persistence"`
	JobRetention    time.Duration `yaml:"job_retention"`

	Ingest IngestConfig `yaml:"ingest"`
}

// EmbedConfig selects and configures the embedding provider.
type EmbedConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int64  `yaml:"cache_size"`

	VoyageAPIKey  string `yaml:"-"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OllamaHost    string `yaml:"ollama_host"`

	ONNXModelPath     string `yaml:"onnx_model_path"`
	ONNXTokenizerPath string `yaml:"onnx_tokenizer_path"`
	ONNXLibraryPath   string `yaml:"onnx_library_path"`
}

// IngestConfig mirrors memory.IngestConfig for the YAML file.
type IngestConfig struct {
	Extensions   []string `yaml:"extensions"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	ExcludeGlobs []string `yaml:"exclude_globs"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ingest := memory.DefaultIngestConfig()
	return &Config{
		Port:            "8080",
		DBDir:           "./db",
		Model:           "claude-sonnet-4-20250514",
		MaxTokens:       4096,
		ProviderTimeout: 60 * time.Second,
		Embed: EmbedConfig{
			Provider:  EmbedVoyage,
			CacheSize: 10_000,
		},
		AllowedOrigins: []string{"*"},
		DefaultOwner:   "default",
		MaxUploadBytes: 10 << 20,
		CloneTimeout:   5 * time.Minute,
		JobRetention:   7 * 24 * time.Hour,
		Ingest: IngestConfig{
			Extensions:   ingest.Extensions,
			ExcludeDirs:  ingest.ExcludeDirs,
			MaxFileBytes: ingest.MaxFileBytes,
		},
	}
}

// Load reads CORTEX_CONFIG (if set) and then the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CORTEX_CONFIG"))
}

// LoadFile layers the YAML file at path (empty skips it) and the environment
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.DBDir, "catalog.db")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DBDir = getEnv("CORTEX_DB_DIR", c.DBDir)
	c.CatalogPath = getEnv("CORTEX_CATALOG_PATH", c.CatalogPath)
	c.ScratchDir = getEnv("CORTEX_SCRATCH_DIR", c.ScratchDir)

	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.Model = getEnv("CORTEX_MODEL", c.Model)
	c.MaxTokens = getIntEnv("CORTEX_MAX_TOKENS", c.MaxTokens)
	c.ProviderTimeout = getDurationEnv("CORTEX_PROVIDER_TIMEOUT", c.ProviderTimeout)

	c.Embed.Provider = strings.ToLower(getEnv("CORTEX_EMBED_PROVIDER", c.Embed.Provider))
	c.Embed.Model = getEnv("CORTEX_EMBED_MODEL", c.Embed.Model)
	c.Embed.Dimensions = getIntEnv("CORTEX_EMBED_DIMENSIONS", c.Embed.Dimensions)
	c.Embed.CacheSize = int64(getIntEnv("CORTEX_EMBED_CACHE_SIZE", int(c.Embed.CacheSize)))
	c.Embed.VoyageAPIKey = getEnv("VOYAGE_API_KEY", c.Embed.VoyageAPIKey)
	c.Embed.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.Embed.OpenAIAPIKey)
	c.Embed.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.Embed.OpenAIBaseURL)
	c.Embed.OllamaHost = getEnv("OLLAMA_HOST", c.Embed.OllamaHost)
	c.Embed.ONNXModelPath = getEnv("CORTEX_ONNX_MODEL", c.Embed.ONNXModelPath)
	c.Embed.ONNXTokenizerPath = getEnv("CORTEX_ONNX_TOKENIZER", c.Embed.ONNXTokenizerPath)
	c.Embed.ONNXLibraryPath = getEnv("ONNXRUNTIME_LIB", c.Embed.ONNXLibraryPath)

	if origins := getEnv("CORTEX_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	c.DefaultOwner = getEnv("CORTEX_DEFAULT_OWNER", c.DefaultOwner)
	c.MaxUploadBytes = int64(getIntEnv("CORTEX_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.CloneTimeout = getDurationEnv("CORTEX_CLONE_TIMEOUT", c.CloneTimeout)
	c.SyncPersistence = getBoolEnv("CORTEX_SYNC_PERSISTENCE", c.SyncPersistence)
	c.JobRetention = getDurationEnv("CORTEX_JOB_RETENTION", c.JobRetention)
}

// Validate checks everything a serving process needs.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", core.ErrMissingCredential)
	}
	return c.ValidateStorage()
}

// ValidateStorage checks the embedding and ingestion settings only, for
// commands that never call the generative provider.
func (c *Config) ValidateStorage() error {
	switch c.Embed.Provider {
	case EmbedVoyage:
		if c.Embed.VoyageAPIKey == "" {
			return fmt.Errorf("%w: VOYAGE_API_KEY is not set", core.ErrMissingCredential)
		}
	case EmbedOpenAI:
		if c.Embed.OpenAIAPIKey == "" && c.Embed.OpenAIBaseURL == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is not set", core.ErrMissingCredential)
		}
	case EmbedONNX:
		if c.Embed.ONNXModelPath == "" || c.Embed.ONNXTokenizerPath == "" {
			return core.Invalid("embed.onnx_model_path", "onnx provider needs a model and tokenizer path")
		}
	case EmbedOllama, EmbedMock:
	default:
		return core.Invalid("embed.provider", fmt.Sprintf("unknown embedding provider %q", c.Embed.Provider))
	}
	if c.DefaultOwner == "" {
		return core.Invalid("default_owner", "must not be empty")
	}
	return c.ManagerConfig().Ingest.Validate()
}

// ManagerConfig converts the settings the memory manager needs.
func (c *Config) ManagerConfig() *memory.Config {
	mc := memory.DefaultConfig()
	mc.SyncPersistence = c.SyncPersistence
	mc.ScratchDir = c.ScratchDir
	if c.CloneTimeout > 0 {
		mc.CloneTimeout = c.CloneTimeout
	}
	mc.Ingest = memory.IngestConfig{
		Extensions:   c.Ingest.Extensions,
		ExcludeDirs:  c.Ingest.ExcludeDirs,
		ExcludeGlobs: c.Ingest.ExcludeGlobs,
		MaxFileBytes: c.Ingest.MaxFileBytes,
	}
	return mc
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
