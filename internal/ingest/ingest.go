package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirasagi62/chopgrep/internal/chunker"
	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/store"
)

// ErrIndexInProgress is returned when an index run is requested while
// another one holds the ingestor.
var ErrIndexInProgress = errors.New("an index run is already in progress")

// FailurePolicy decides what happens to a chunk whose embedding fails
type FailurePolicy int

const (
	// FailFast aborts the run on the first embedding failure. Batches
	// committed before the failure stay committed.
	FailFast FailurePolicy = iota

	// SkipChunk drops chunks that fail to embed and continues
	SkipChunk

	// ZeroVector stores failed chunks with an all-zero embedding so they
	// remain findable by keyword search. Zero vectors rank last in
	// similarity queries.
	ZeroVector
)

// ParsePolicy converts a configuration string into a FailurePolicy
func ParsePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "failfast":
		return FailFast, nil
	case "skip":
		return SkipChunk, nil
	case "zero":
		return ZeroVector, nil
	}
	return FailFast, fmt.Errorf("unknown failure policy %q", s)
}

// String returns the configuration name of the policy
func (p FailurePolicy) String() string {
	switch p {
	case SkipChunk:
		return "skip"
	case ZeroVector:
		return "zero"
	default:
		return "fail"
	}
}

// Config controls batching and failure handling for an index run
type Config struct {
	BatchSize      int           // chunks per storage batch (default store.DefaultBatchSize)
	EmbedBatchSize int           // texts per embedding call (default embedder.DefaultBatchSize)
	Policy         FailurePolicy // what to do when a chunk fails to embed
}

// Statistics summarizes an index run
type Statistics struct {
	Files    int           `json:"files"`
	Chunks   int           `json:"chunks"`
	Inserted int           `json:"inserted"`
	Replaced int           `json:"replaced"`
	Skipped  int           `json:"skipped"`
	Zeroed   int           `json:"zeroed"`
	Duration time.Duration `json:"duration"`
}

// Ingestor coordinates the indexing pipeline: scan, embed, store
type Ingestor struct {
	store    store.Store
	embedder embedder.Embedder
	scanner  *chunker.Scanner
	config   Config
	logger   zerolog.Logger
	lock     runLock
}

// New creates an Ingestor. Zero config values fall back to defaults.
func New(st store.Store, emb embedder.Embedder, sc *chunker.Scanner, cfg Config, logger zerolog.Logger) *Ingestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = store.DefaultBatchSize
	}
	if cfg.EmbedBatchSize <= 0 || cfg.EmbedBatchSize > embedder.MaxBatchSize {
		cfg.EmbedBatchSize = embedder.DefaultBatchSize
	}

	return &Ingestor{
		store:    st,
		embedder: emb,
		scanner:  sc,
		config:   cfg,
		logger:   logger,
	}
}

// IndexDirectory scans root, embeds every chunk, and stores the results in
// batches. A file that was indexed before has its old chunks deleted the
// first time it is seen, so re-running over the same tree replaces rather
// than duplicates. Returns statistics for the run; on error the statistics
// still reflect whatever was committed.
func (ing *Ingestor) IndexDirectory(ctx context.Context, root string) (*Statistics, error) {
	if !ing.lock.tryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer ing.lock.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	stats := &Statistics{}

	ing.logger.Info().
		Str("root", root).
		Str("provider", ing.embedder.Provider()).
		Str("model", ing.embedder.Model()).
		Int("dimension", ing.embedder.Dimension()).
		Str("policy", ing.config.Policy.String()).
		Msg("indexing started")

	chunks, wait := ing.scanner.Scan(ctx, root)

	seen := make(map[string]bool)
	batch := make([]chunker.Chunk, 0, ing.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := ing.flushBatch(ctx, batch, stats)
		batch = batch[:0]
		return err
	}

	var runErr error
	for chunk := range chunks {
		if runErr != nil {
			continue // drain so the scanner goroutine can exit
		}

		if !seen[chunk.FilePath] {
			seen[chunk.FilePath] = true
			deleted, err := ing.store.DeleteChunksByFile(ctx, chunk.FilePath)
			if err != nil {
				runErr = fmt.Errorf("failed to replace chunks for %s: %w", chunk.FilePath, err)
				cancel()
				continue
			}
			stats.Replaced += deleted
		}

		stats.Chunks++
		batch = append(batch, chunk)
		if len(batch) >= ing.config.BatchSize {
			if err := flush(); err != nil {
				runErr = err
				cancel()
			}
		}
	}

	if runErr == nil {
		runErr = flush()
	}
	if err := wait(); err != nil && runErr == nil {
		runErr = err
	}

	stats.Files = len(seen)
	stats.Duration = time.Since(start)

	evt := ing.logger.Info()
	if runErr != nil {
		evt = ing.logger.Error().Err(runErr)
	}
	evt.Int("files", stats.Files).
		Int("chunks", stats.Chunks).
		Int("inserted", stats.Inserted).
		Int("replaced", stats.Replaced).
		Int("skipped", stats.Skipped).
		Int("zeroed", stats.Zeroed).
		Dur("duration", stats.Duration).
		Msg("indexing finished")

	return stats, runErr
}

// flushBatch embeds one storage batch and bulk-inserts it
func (ing *Ingestor) flushBatch(ctx context.Context, batch []chunker.Chunk, stats *Statistics) error {
	rows := make([]*store.Chunk, 0, len(batch))

	for from := 0; from < len(batch); from += ing.config.EmbedBatchSize {
		to := min(from+ing.config.EmbedBatchSize, len(batch))
		sub := batch[from:to]

		texts := make([]string, len(sub))
		for i, chunk := range sub {
			texts[i] = embedText(chunk)
		}

		vectors, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ing.config.Policy == FailFast {
				return fmt.Errorf("embedding failed: %w", err)
			}
			// Retry one by one to isolate the failing chunks
			vectors, err = ing.embedIndividually(ctx, sub, texts, stats)
			if err != nil {
				return err
			}
		}

		for i, vector := range vectors {
			if vector == nil {
				continue // dropped by SkipChunk
			}
			rows = append(rows, toStoreChunk(sub[i], vector))
		}
	}

	committed, err := ing.store.BulkInsert(ctx, rows, ing.config.BatchSize)
	stats.Inserted += committed
	if err != nil {
		return fmt.Errorf("storing batch: %w", err)
	}

	ing.logger.Debug().Int("chunks", len(rows)).Msg("batch committed")
	return nil
}

// embedIndividually applies the failure policy per chunk after a batch call
// failed. Skipped chunks leave a nil slot in the result.
func (ing *Ingestor) embedIndividually(ctx context.Context, sub []chunker.Chunk, texts []string, stats *Statistics) ([][]float32, error) {
	vectors := make([][]float32, len(sub))

	for i, text := range texts {
		vector, err := ing.embedder.Embed(ctx, text)
		if err == nil {
			vectors[i] = vector
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch ing.config.Policy {
		case SkipChunk:
			stats.Skipped++
			ing.logger.Warn().Err(err).
				Str("file", sub[i].FilePath).
				Str("entity", sub[i].EntityName).
				Msg("chunk skipped: embedding failed")
		case ZeroVector:
			stats.Zeroed++
			vectors[i] = make([]float32, ing.store.Dimension())
			ing.logger.Warn().Err(err).
				Str("file", sub[i].FilePath).
				Str("entity", sub[i].EntityName).
				Msg("chunk stored with zero vector: embedding failed")
		default:
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
	}

	return vectors, nil
}

// embedText prefixes the doc comment when the chunk has one
func embedText(c chunker.Chunk) string {
	if c.Doc == "" {
		return c.Content
	}
	return c.Doc + "\n" + c.Content
}

func toStoreChunk(c chunker.Chunk, vector []float32) *store.Chunk {
	return &store.Chunk{
		FileName:   c.FileName,
		FilePath:   c.FilePath,
		Content:    c.Content,
		Doc:        c.Doc,
		ParentPath: c.ParentPath,
		EntityName: c.EntityName,
		Embedding:  vector,
	}
}
