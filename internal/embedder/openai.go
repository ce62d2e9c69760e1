package embedder

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI provider defaults
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIDimension    = 384
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API.
// Models in the text-embedding-3 family support server-side dimension
// reduction, which keeps output aligned with the configured dimension.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
}

// NewOpenAIProvider creates an OpenAI embedding provider. baseURL overrides
// the API endpoint for OpenAI-compatible servers; empty uses the default.
func NewOpenAIProvider(apiKey, baseURL, model string, dimension int, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY", ErrNoAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimension <= 0 {
		dimension = OpenAIDimension
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		dimension: dimension,
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}, nil
}

// Embed generates an embedding for a single text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if p.cache != nil {
		if vector, ok := p.cache.Get(hash); ok {
			return vector, nil
		}
	}

	vectors, err := p.requestEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Set(hash, vectors[0])
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single API call.
// Cached texts are served locally; only misses go to the API.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

	vectors, err := p.requestEmbeddings(ctx, misses)
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

// requestEmbeddings calls the embeddings endpoint with retry and validates
// the response shape before returning index-aligned vectors.
func (p *OpenAIProvider) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	// Only text-embedding-3 models accept the dimensions parameter
	if strings.HasPrefix(p.model, "text-embedding-3") {
		req.Dimensions = p.dimension
	}

	return retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		resp, err := p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %v", ErrProviderFailed, err)
		}

		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("%w: openai returned %d embeddings for %d texts", ErrProviderFailed, len(resp.Data), len(texts))
		}

		vectors := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("%w: openai returned out-of-range index %d", ErrProviderFailed, d.Index)
			}
			vector := make([]float32, len(d.Embedding))
			copy(vector, d.Embedding)
			vectors[d.Index] = vector
		}

		for i, vector := range vectors {
			if len(vector) != p.dimension {
				return nil, fmt.Errorf("%w: openai returned dimension %d, expected %d", ErrProviderFailed, len(vector), p.dimension)
			}
			vectors[i] = NormalizeVector(vector)
		}

		return vectors, nil
	})
}

// Dimension returns the embedding dimension
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Model returns the model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Close releases resources (no-op for API-backed providers)
func (p *OpenAIProvider) Close() error {
	return nil
}
