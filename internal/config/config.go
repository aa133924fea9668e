// Package config provides configuration loading and structs for the blueprint server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Ingest     IngestConfig     `yaml:"ingest"`
	OCR        OCRConfig        `yaml:"ocr"`
	Search     SearchConfig     `yaml:"search"`
	Synth      SynthConfig      `yaml:"synth"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the ingestion ledger and the keyword index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// VectorConfig selects the vector backend.
type VectorConfig struct {
	Type     string         `yaml:"type"`
	Path     string         `yaml:"path"`
	Timeout  time.Duration  `yaml:"timeout"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

// WeaviateConfig holds the remote Weaviate connection.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	APIKey string `yaml:"api_key"`
	Class  string `yaml:"class"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
}

// GenerationConfig holds the text generation provider settings.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
}

// RetryConfig bounds retries of external calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
}

// ChunkingConfig holds chunk size bounds in characters.
type ChunkingConfig struct {
	MinChunkChars int `yaml:"min_chunk_chars"`
	MaxChunkChars int `yaml:"max_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	DefaultNamespace string   `yaml:"default_namespace"`
	Concurrency      int      `yaml:"concurrency"`
	DataDir          string   `yaml:"data_dir"`
	Extensions       []string `yaml:"extensions"`
}

// OCRConfig configures the fallback for scanned pages.
type OCRConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DPI           int    `yaml:"dpi"`
	MinPageChars  int    `yaml:"min_page_chars"`
	PdftoppmPath  string `yaml:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultTopK   int     `yaml:"default_top_k"`
	MaxTopK       int     `yaml:"max_top_k"`
	KeywordWeight float64 `yaml:"keyword_weight"`
	DrawingBoost  float64 `yaml:"drawing_boost"`
	Fuzzy         bool    `yaml:"fuzzy"`
}

// SynthConfig holds answer synthesis settings.
type SynthConfig struct {
	MaxSources         int     `yaml:"max_sources"`
	HistoryTurns       int     `yaml:"history_turns"`
	LowScoreThreshold  float64 `yaml:"low_score_threshold"`
	HighScoreThreshold float64 `yaml:"high_score_threshold"`
	// MeasurementGuardrail defaults to true when unset.
	MeasurementGuardrail *bool `yaml:"measurement_guardrail"`
}

// GuardrailOrDefault returns whether the measurement guardrail is on.
func (s *SynthConfig) GuardrailOrDefault() bool {
	if s.MeasurementGuardrail != nil {
		return *s.MeasurementGuardrail
	}
	return true
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Namespace   string   `yaml:"namespace"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, applies defaults,
// and overlays secrets from the environment.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	ApplyEnv(&cfg)
	return &cfg, nil
}

// Default returns the default configuration with environment overrides, for runs without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if wd, err := os.Getwd(); err == nil {
		cfg.expandPaths(wd)
	}
	ApplyEnv(cfg)
	return cfg
}

func (cfg *Config) expandPaths(configDir string) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Vector.Path = expandPath(cfg.Vector.Path, configDir)
	cfg.Ingest.DataDir = expandPath(cfg.Ingest.DataDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// ApplyEnv overlays secrets and the default namespace from the environment.
// Environment values win over the file so keys never need to live in YAML.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.Provider == "openai" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.Provider == "openai" {
			cfg.Generation.APIKey = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if cfg.Embedding.Provider == "gemini" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.Provider == "gemini" {
			cfg.Generation.APIKey = v
		}
	}
	if v := os.Getenv("WEAVIATE_APIKEY"); v != "" {
		cfg.Vector.Weaviate.APIKey = v
	}
	if v := os.Getenv("BLUEPRINT_NAMESPACE"); v != "" {
		cfg.Ingest.DefaultNamespace = v
	}
}

// Validate checks that the configuration can build a working pipeline.
func (cfg *Config) Validate() error {
	var problems []error
	c := cfg.Chunking
	switch {
	case c.MinChunkChars <= 0 || c.MaxChunkChars < c.MinChunkChars:
		problems = append(problems, fmt.Errorf("chunking: need 0 < min_chunk_chars <= max_chunk_chars, got %d and %d", c.MinChunkChars, c.MaxChunkChars))
	case c.OverlapChars < 0 || c.OverlapChars >= c.MinChunkChars:
		problems = append(problems, fmt.Errorf("chunking: overlap_chars %d must be in [0, %d)", c.OverlapChars, c.MinChunkChars))
	case c.MaxChunkChars < 2*c.MinChunkChars-c.OverlapChars:
		problems = append(problems, fmt.Errorf("chunking: max_chunk_chars must be at least %d", 2*c.MinChunkChars-c.OverlapChars))
	}
	if cfg.Embedding.Dimensions <= 0 {
		problems = append(problems, fmt.Errorf("embedding: dimensions must be positive"))
	}
	if !oneOf(cfg.Embedding.Provider, "openai", "gemini", "mock") {
		problems = append(problems, fmt.Errorf("embedding: unknown provider %q", cfg.Embedding.Provider))
	}
	if !oneOf(cfg.Generation.Provider, "openai", "gemini", "mock") {
		problems = append(problems, fmt.Errorf("generation: unknown provider %q", cfg.Generation.Provider))
	}
	if !oneOf(cfg.Vector.Type, "memory", "chromem", "weaviate") {
		problems = append(problems, fmt.Errorf("vector: unknown type %q", cfg.Vector.Type))
	}
	if cfg.Vector.Type == "weaviate" && cfg.Vector.Weaviate.Host == "" {
		problems = append(problems, fmt.Errorf("vector: weaviate.host is required"))
	}
	if cfg.Search.KeywordWeight < 0 || cfg.Search.KeywordWeight > 1 {
		problems = append(problems, fmt.Errorf("search: keyword_weight %.2f must be in [0, 1]", cfg.Search.KeywordWeight))
	}
	if cfg.Search.DefaultTopK > cfg.Search.MaxTopK {
		problems = append(problems, fmt.Errorf("search: default_top_k %d exceeds max_top_k %d", cfg.Search.DefaultTopK, cfg.Search.MaxTopK))
	}
	if cfg.Synth.LowScoreThreshold > cfg.Synth.HighScoreThreshold {
		problems = append(problems, fmt.Errorf("synth: low_score_threshold exceeds high_score_threshold"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
