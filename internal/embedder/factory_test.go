package embedder

import (
	"errors"
	"testing"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		openaiKey string
		want      string
	}{
		{
			name:      "explicit openai provider",
			provider:  "openai",
			openaiKey: "",
			want:      ProviderOpenAI,
		},
		{
			name:      "explicit ollama provider",
			provider:  "ollama",
			openaiKey: "",
			want:      ProviderOllama,
		},
		{
			name:      "explicit hash provider",
			provider:  "hash",
			openaiKey: "",
			want:      ProviderHash,
		},
		{
			name:      "provider name is lowercased",
			provider:  "OpenAI",
			openaiKey: "",
			want:      ProviderOpenAI,
		},
		{
			name:      "openai key present",
			provider:  "",
			openaiKey: "test-key",
			want:      ProviderOpenAI,
		},
		{
			name:      "explicit provider wins over key",
			provider:  "hash",
			openaiKey: "test-key",
			want:      ProviderHash,
		},
		{
			name:      "no configuration falls back to hash",
			provider:  "",
			openaiKey: "",
			want:      ProviderHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHOPGREP_EMBEDDING_PROVIDER", tt.provider)
			t.Setenv("OPENAI_API_KEY", tt.openaiKey)

			if got := DetectProvider(); got != tt.want {
				t.Errorf("DetectProvider() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("hash provider", func(t *testing.T) {
		emb, err := New(Config{Provider: "hash", Dimension: 16, CacheSize: 10})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()

		if emb.Provider() != ProviderHash {
			t.Errorf("Provider() = %s, want %s", emb.Provider(), ProviderHash)
		}
		if emb.Dimension() != 16 {
			t.Errorf("Dimension() = %d, want 16", emb.Dimension())
		}
	})

	t.Run("ollama provider", func(t *testing.T) {
		emb, err := New(Config{Provider: "ollama", BaseURL: "http://localhost:11434"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()

		if emb.Provider() != ProviderOllama {
			t.Errorf("Provider() = %s, want %s", emb.Provider(), ProviderOllama)
		}
	})

	t.Run("openai provider with explicit key", func(t *testing.T) {
		emb, err := New(Config{Provider: "openai", APIKey: "test-key"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()

		if emb.Provider() != ProviderOpenAI {
			t.Errorf("Provider() = %s, want %s", emb.Provider(), ProviderOpenAI)
		}
	})

	t.Run("openai provider key from environment", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "env-key")

		emb, err := New(Config{Provider: "openai"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()
	})

	t.Run("openai provider without key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		_, err := New(Config{Provider: "openai"})
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("New() error = %v, want ErrNoAPIKey", err)
		}
	})

	t.Run("auto resolves via environment", func(t *testing.T) {
		t.Setenv("CHOPGREP_EMBEDDING_PROVIDER", "")
		t.Setenv("OPENAI_API_KEY", "")

		emb, err := New(Config{Provider: "auto"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()

		if emb.Provider() != ProviderHash {
			t.Errorf("Provider() = %s, want %s", emb.Provider(), ProviderHash)
		}
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := New(Config{Provider: "sbert"})
		if !errors.Is(err, ErrUnsupportedProvider) {
			t.Errorf("New() error = %v, want ErrUnsupportedProvider", err)
		}
	})
}
