package store

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultDimension is the embedding width used when none is configured
	DefaultDimension = 384

	// DefaultBatchSize is the number of chunks committed per bulk transaction
	DefaultBatchSize = 500
)

// Store defines the interface for persisting chunks and querying them by
// embedding similarity. The vector index is kept in sync with chunk metadata
// by every mutating operation; callers never manage it directly.
type Store interface {
	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) (int64, error)
	BulkInsert(ctx context.Context, chunks []*Chunk, batchSize int) (int, error)
	UpdateChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksByFile(ctx context.Context, filePath string) ([]*Chunk, error)
	DeleteChunk(ctx context.Context, chunkID int64) error
	DeleteChunksByFile(ctx context.Context, filePath string) (int, error)

	// Search operations
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
	SearchText(ctx context.Context, query string, k int) ([]TextResult, error)

	// Status operations
	Status(ctx context.Context) (*Status, error)

	// Database operations
	Dimension() int
	Close() error
}

// Chunk is a fragment of a source file together with its embedding
type Chunk struct {
	ID         int64
	FileName   string
	FilePath   string
	Content    string
	Doc        string // doc comment or surrounding prose, may be empty
	ParentPath string // enclosing scope, e.g. package or receiver path
	EntityName string // declaration name for code chunks
	Embedding  []float32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SearchResult is a chunk returned from vector search with its cosine
// distance to the query (0 identical direction, 2 opposite)
type SearchResult struct {
	Chunk
	Distance float64
}

// TextResult is a chunk returned from full-text search with its
// normalized BM25 score (higher is better)
type TextResult struct {
	Chunk
	Score float64
}

// Status contains statistics about the chunk store
type Status struct {
	ChunkCount  int
	VectorCount int
	FileCount   int
	Dimension   int
	IndexSizeMB float64
	Health      HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	VectorsInSync      bool
	FTSIndexBuilt      bool
}

// BatchError reports a bulk insert that failed partway through. Batches
// before the failed one remain committed; Committed counts their records.
type BatchError struct {
	Batch     int // zero-based index of the failed batch
	Committed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("bulk insert failed at batch %d after %d chunks committed: %v", e.Batch, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
