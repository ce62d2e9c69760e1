package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sirasagi62/chopgrep/internal/chunker"
	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/store"
)

// EnvPrefix namespaces environment variable overrides, e.g.
// CHOPGREP_EMBEDDING_PROVIDER maps to embedding.provider.
const EnvPrefix = "CHOPGREP"

// DefaultConfigName is the config file searched for when no explicit path
// is given.
const DefaultConfigName = "chopgrep.yaml"

// Config holds all configuration for the application
type Config struct {
	DBPath    string          `mapstructure:"db_path"`
	LogLevel  string          `mapstructure:"log_level"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
	CacheSize int    `mapstructure:"cache_size"`
}

// IngestConfig holds indexing pipeline configuration
type IngestConfig struct {
	BatchSize      int    `mapstructure:"batch_size"`
	EmbedBatchSize int    `mapstructure:"embed_batch_size"`
	FailurePolicy  string `mapstructure:"failure_policy"`
}

// ChunkingConfig holds file scanning and chunking configuration
type ChunkingConfig struct {
	WindowLines  int      `mapstructure:"window_lines"`
	OverlapLines int      `mapstructure:"overlap_lines"`
	Extensions   []string `mapstructure:"extensions"`
	IgnoreDirs   []string `mapstructure:"ignore_dirs"`
	MaxFileSize  int64    `mapstructure:"max_file_size"`
}

// Load reads configuration from defaults, an optional YAML file, and
// environment variables, in increasing priority. An empty path searches
// the working directory and ~/.config/chopgrep for DefaultConfigName; a
// missing file in that case is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if file := findConfigFile(); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "chopgrep.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("embedding.provider", "auto")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", store.DefaultDimension)
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("ingest.batch_size", store.DefaultBatchSize)
	v.SetDefault("ingest.embed_batch_size", embedder.DefaultBatchSize)
	v.SetDefault("ingest.failure_policy", "fail")

	v.SetDefault("chunking.window_lines", chunker.DefaultWindowLines)
	v.SetDefault("chunking.overlap_lines", chunker.DefaultOverlapLines)
	v.SetDefault("chunking.extensions", []string{})
	v.SetDefault("chunking.ignore_dirs", []string{})
	v.SetDefault("chunking.max_file_size", int64(chunker.DefaultMaxFileSize))
}

// findConfigFile looks for DefaultConfigName in the working directory and
// the user config directory. Returns "" when none exists.
func findConfigFile() string {
	candidates := []string{DefaultConfigName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "chopgrep", DefaultConfigName))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path cannot be empty")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Ingest.BatchSize < 0 {
		return fmt.Errorf("ingest.batch_size cannot be negative, got %d", c.Ingest.BatchSize)
	}
	if c.Chunking.OverlapLines >= c.Chunking.WindowLines && c.Chunking.WindowLines > 0 {
		return fmt.Errorf("chunking.overlap_lines (%d) must be smaller than chunking.window_lines (%d)",
			c.Chunking.OverlapLines, c.Chunking.WindowLines)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
