package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Provider names accepted by New
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // openai, ollama, hash, or empty for auto-detection
	Model     string // provider-specific model name; empty uses the provider default
	APIKey    string // falls back to OPENAI_API_KEY for the openai provider
	BaseURL   string // API endpoint override (openai-compatible server or ollama host)
	Dimension int    // embedding dimension; zero uses the provider default
	CacheSize int    // LRU cache entries; zero disables caching
}

// New creates an embedder with explicit configuration. An empty or "auto"
// provider is resolved with DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" || provider == "auto" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAIProvider(apiKey, cfg.BaseURL, cfg.Model, cfg.Dimension, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cache), nil
	case ProviderHash:
		return NewHashProvider(cfg.Dimension, cache), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on the
// current environment.
// Priority:
// 1. CHOPGREP_EMBEDDING_PROVIDER (openai, ollama, hash)
// 2. OPENAI_API_KEY present: openai
// 3. Default to hash, which needs no credentials
func DetectProvider() string {
	if provider := os.Getenv("CHOPGREP_EMBEDDING_PROVIDER"); provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}

	return ProviderHash
}
