// Package config loads and validates autotrans configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigName is the config file basename searched for at startup.
	DefaultConfigName = "autotrans"
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "AUTOTRANS"
)

// Config holds the application configuration.
type Config struct {
	// SourceDocsPath is the source-language reference documentation (file or directory)
	SourceDocsPath string `mapstructure:"src_docs" yaml:"src_docs,omitempty"`
	// TargetDocsPath is the target-language reference documentation (file or directory)
	TargetDocsPath string `mapstructure:"trg_docs" yaml:"trg_docs,omitempty"`
	// InputRoot is the directory scanned for files to translate
	InputRoot string `mapstructure:"input" yaml:"input,omitempty"`

	// Stores configuration
	Stores StoresConfig `mapstructure:"stores" yaml:"stores,omitempty"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding,omitempty"`

	// Generation configuration
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation,omitempty"`

	// Translation configuration
	Translation TranslationConfig `mapstructure:"translation" yaml:"translation,omitempty"`

	// Run configuration
	Run RunConfig `mapstructure:"run" yaml:"run,omitempty"`
}

// StoresConfig holds the persisted context-memory file paths.
type StoresConfig struct {
	// SourcePath is the source-language context store (JSON)
	SourcePath string `mapstructure:"source" yaml:"source,omitempty"`
	// TargetPath is the target-language context store (JSON)
	TargetPath string `mapstructure:"target" yaml:"target,omitempty"`
	// HistoryPath is the translation-history store (JSON)
	HistoryPath string `mapstructure:"history" yaml:"history,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding provider: "ollama" or "openai"
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`
	// Model is the embedding model name
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// OllamaURL is the Ollama API URL
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	// Dimensions is the embedding vector width
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions,omitempty"`
	// OpenAIAPIKey is the API key for OpenAI (also OPENAI_API_KEY env)
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	// CacheSize is the in-memory embedding cache capacity (entries)
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size,omitempty"`
}

// GenerationConfig holds generation backend settings.
type GenerationConfig struct {
	// Provider is the generation provider: "ollama" or "openai"
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`
	// Model is the generation model identifier
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// OllamaURL is the Ollama API URL
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	// Temperature is the sampling temperature
	Temperature float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	// ContextWindow is the model context window in tokens
	ContextWindow int `mapstructure:"context_window" yaml:"context_window,omitempty"`
	// OpenAIAPIKey is the API key for OpenAI (also OPENAI_API_KEY env)
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
}

// TranslationConfig holds prompt and artifact settings.
type TranslationConfig struct {
	// SourceLanguage names the language being translated from
	SourceLanguage string `mapstructure:"source_language" yaml:"source_language,omitempty"`
	// TargetLanguage names the language being translated to
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language,omitempty"`
	// CodeFenceLabel is the fenced-block label the backend is asked to use for code
	CodeFenceLabel string `mapstructure:"code_fence_label" yaml:"code_fence_label,omitempty"`
	// CodeExt is the extension for translated-code artifacts
	CodeExt string `mapstructure:"code_ext" yaml:"code_ext,omitempty"`
	// CommentExt is the extension for explanation artifacts
	CommentExt string `mapstructure:"comment_ext" yaml:"comment_ext,omitempty"`
	// ReasoningExt is the extension for optional reasoning artifacts
	ReasoningExt string `mapstructure:"reasoning_ext" yaml:"reasoning_ext,omitempty"`
}

// RunConfig holds batch-run settings.
type RunConfig struct {
	// Patterns is the glob suffix family matched against candidate file names
	Patterns []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	// PathlistFile records every discovered file, overwritten each run
	PathlistFile string `mapstructure:"pathlist_file" yaml:"pathlist_file,omitempty"`
	// LedgerFile is the append-only processed-files ledger
	LedgerFile string `mapstructure:"ledger_file" yaml:"ledger_file,omitempty"`
	// IgnorePatterns are glob patterns excluded from discovery
	IgnorePatterns []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns,omitempty"`
	// Stream echoes generation output as it arrives
	Stream bool `mapstructure:"stream" yaml:"stream,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceDocsPath: "./src_docs.txt",
		TargetDocsPath: "./trg_docs_2.txt",
		InputRoot:      "./symbolics/sys.sct",
		Stores: StoresConfig{
			SourcePath:  "src_db.json",
			TargetPath:  "trg_db.json",
			HistoryPath: "done_db.json",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaURL:  "http://localhost:11434",
			Dimensions: 768,
			CacheSize:  1000,
		},
		Generation: GenerationConfig{
			Provider:      "ollama",
			Model:         "deepseek-r1:70b",
			OllamaURL:     "http://localhost:11434",
			Temperature:   0.1,
			ContextWindow: 4096,
		},
		Translation: TranslationConfig{
			SourceLanguage: "Lisp",
			TargetLanguage: "modern Common Lisp",
			CodeFenceLabel: "lisp",
			CodeExt:        ".autot",
			CommentExt:     ".comment",
			ReasoningExt:   ".think",
		},
		Run: RunConfig{
			Patterns:     []string{"*.lisp*"},
			PathlistFile: "pathlist.txt",
			LedgerFile:   "processed_files.txt",
			// Directory form so discovery can prune whole trees, not just
			// filter their files.
			IgnorePatterns: []string{
				".git/",
				"node_modules/",
				"vendor/",
			},
		},
	}
}

// Load loads configuration from file and environment.
// configPath may be empty, in which case autotrans.yaml is searched for in
// the current directory.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	_ = v.BindEnv("embedding.provider", "AUTOTRANS_EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.model", "AUTOTRANS_EMBEDDING_MODEL")
	_ = v.BindEnv("embedding.ollama_url", "AUTOTRANS_OLLAMA_URL")
	_ = v.BindEnv("embedding.openai_api_key", "AUTOTRANS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("generation.provider", "AUTOTRANS_GENERATION_PROVIDER")
	_ = v.BindEnv("generation.model", "AUTOTRANS_GENERATION_MODEL")
	_ = v.BindEnv("generation.ollama_url", "AUTOTRANS_OLLAMA_URL")
	_ = v.BindEnv("generation.openai_api_key", "AUTOTRANS_OPENAI_API_KEY", "OPENAI_API_KEY")

	// Read config file. A missing file is fine: defaults, env, and flags
	// cover the full surface. A file that exists but cannot be parsed is a
	// diagnostic, never a silent fallback to defaults.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configPath != "" && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if len(c.Run.Patterns) == 0 {
		return fmt.Errorf("run.patterns must not be empty")
	}
	for _, p := range c.Run.Patterns {
		if _, err := filepath.Match(p, "probe"); err != nil {
			return fmt.Errorf("invalid run pattern %q: %w", p, err)
		}
	}
	if c.Translation.CodeExt == c.Translation.CommentExt {
		return fmt.Errorf("translation.code_ext and translation.comment_ext must differ")
	}
	return nil
}
