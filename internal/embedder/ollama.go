package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama provider defaults
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "all-minilm"
	OllamaDimension    = 384

	// Cold model loads can exceed the usual API timeout
	ollamaRequestTimeout = 60 * time.Second
)

// OllamaProvider implements Embedder using a local Ollama server's
// /api/embed endpoint. No API key is required.
type OllamaProvider struct {
	httpClient *http.Client
	host       string
	model      string
	dimension  int
	cache      *Cache
	retry      RetryConfig
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaProvider creates an Ollama embedding provider. host is the
// server base URL; empty uses http://localhost:11434.
func NewOllamaProvider(host, model string, dimension int, cache *Cache) *OllamaProvider {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if dimension <= 0 {
		dimension = OllamaDimension
	}

	return &OllamaProvider{
		httpClient: &http.Client{Timeout: ollamaRequestTimeout},
		host:       strings.TrimRight(host, "/"),
		model:      model,
		dimension:  dimension,
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}
}

// Embed generates an embedding for a single text
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if p.cache != nil {
		if vector, ok := p.cache.Get(hash); ok {
			return vector, nil
		}
	}

	vectors, err := p.callAPI(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Set(hash, vectors[0])
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d texts (max %d)", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}

	results := make([][]float32, len(texts))

	var misses []string
	var missIdx []int
	for i, text := range texts {
		if p.cache != nil {
			if vector, ok := p.cache.Get(ComputeHash(text)); ok {
				results[i] = vector
				continue
			}
		}
		misses = append(misses, text)
		missIdx = append(missIdx, i)
	}

	if len(misses) == 0 {
		return results, nil
	}

	vectors, err := p.callAPI(ctx, misses)
	if err != nil {
		return nil, err
	}

	for j, vector := range vectors {
		i := missIdx[j]
		results[i] = vector
		if p.cache != nil {
			p.cache.Set(ComputeHash(texts[i]), vector)
		}
	}

	return results, nil
}

// callAPI posts texts to /api/embed with retry and validates the response
func (p *OllamaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.host + "/api/embed"

	return retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama: %v", ErrProviderFailed, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrProviderFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		var result ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("%w: failed to decode ollama response: %v", ErrProviderFailed, err)
		}

		if len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d texts", ErrProviderFailed, len(result.Embeddings), len(texts))
		}

		vectors := make([][]float32, len(texts))
		for i, vector := range result.Embeddings {
			if len(vector) != p.dimension {
				return nil, fmt.Errorf("%w: model %s returned dimension %d, expected %d", ErrProviderFailed, p.model, len(vector), p.dimension)
			}
			vectors[i] = NormalizeVector(vector)
		}

		return vectors, nil
	})
}

// Dimension returns the embedding dimension
func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *OllamaProvider) Provider() string {
	return "ollama"
}

// Model returns the model name
func (p *OllamaProvider) Model() string {
	return p.model
}

// Close releases resources
func (p *OllamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
