package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// HashDimension is the default dimension for the hash provider
const HashDimension = 384

// HashProvider implements Embedder with deterministic vectors derived from
// the SHA-256 of the text. It needs no network or API key, which makes it
// suitable for offline indexing and tests. Identical texts always map to
// identical vectors; similarity between different texts is meaningless.
type HashProvider struct {
	dimension int
	cache     *Cache
}

// NewHashProvider creates a deterministic hash-based embedding provider
func NewHashProvider(dimension int, cache *Cache) *HashProvider {
	if dimension <= 0 {
		dimension = HashDimension
	}
	return &HashProvider{
		dimension: dimension,
		cache:     cache,
	}
}

// Embed generates a deterministic embedding for the text
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if p.cache != nil {
		if vector, ok := p.cache.Get(hash); ok {
			return vector, nil
		}
	}

	vector := hashVector(text, p.dimension)

	if p.cache != nil {
		p.cache.Set(hash, vector)
	}
	return vector, nil
}

// EmbedBatch generates deterministic embeddings for multiple texts
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d texts (max %d)", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vector
	}
	return results, nil
}

// hashVector expands the SHA-256 of text into a unit vector of the given
// dimension by chaining hash blocks, eight float32 values per block.
func hashVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	block := sha256.Sum256([]byte(text))

	for i := 0; i < dimension; i++ {
		if i > 0 && i%8 == 0 {
			block = sha256.Sum256(block[:])
		}
		off := (i % 8) * 4
		bits := binary.LittleEndian.Uint32(block[off : off+4])
		// Map to [-1, 1]
		vector[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}

	return NormalizeVector(vector)
}

// Dimension returns the embedding dimension
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *HashProvider) Provider() string {
	return "hash"
}

// Model returns the model name
func (p *HashProvider) Model() string {
	return "sha256"
}

// Close releases resources
func (p *HashProvider) Close() error {
	return nil
}
