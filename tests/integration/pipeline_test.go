package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirasagi62/chopgrep/internal/chunker"
	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/ingest"
	"github.com/sirasagi62/chopgrep/internal/searcher"
	"github.com/sirasagi62/chopgrep/internal/store"
)

const testDim = 32

// pipeline bundles every component the way cmd/chopgrep wires them
type pipeline struct {
	store    *store.SQLiteStore
	embedder embedder.Embedder
	ingestor *ingest.Ingestor
	searcher *searcher.Searcher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "chopgrep.db")
	st, err := store.Open(dbPath, testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	emb := embedder.NewHashProvider(testDim, embedder.NewCache(1000))
	logger := zerolog.Nop()
	sc := chunker.NewScanner(chunker.New(0, 0), chunker.ScanConfig{}, logger)

	return &pipeline{
		store:    st,
		embedder: emb,
		ingestor: ingest.New(st, emb, sc, ingest.Config{}, logger),
		searcher: searcher.New(st, emb),
	}
}

// writeTree lays out a small project with Go and markdown files
func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "internal", "auth"), 0755))

	files := map[string]string{
		"main.go": `package main

func main() {
	run()
}
`,
		"internal/auth/token.go": `package auth

// ValidateToken checks a bearer token and returns its subject.
func ValidateToken(token string) (string, error) {
	return parse(token)
}

// RefreshToken exchanges a refresh token for a new access token.
func RefreshToken(token string) (string, error) {
	return rotate(token)
}
`,
		"README.md": `# demo

A sample project used to exercise directory indexing end to end.
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestPipeline_IndexThenQuery(t *testing.T) {
	p := newPipeline(t)
	dir := writeTree(t)
	ctx := context.Background()

	stats, err := p.ingestor.IndexDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Greater(t, stats.Inserted, 0)
	assert.Equal(t, stats.Chunks, stats.Inserted)

	// Metadata and vector index stay bijective through the whole run
	status, err := p.store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.ChunkCount, status.VectorCount)
	assert.True(t, status.Health.VectorsInSync)

	// Keyword search finds the declaration by name
	resp, err := p.searcher.Search(ctx, searcher.Request{
		Query: "ValidateToken",
		Mode:  searcher.ModeKeyword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "ValidateToken", resp.Results[0].EntityName)
	assert.Equal(t, "internal/auth/token.go", resp.Results[0].FilePath)

	// Semantic search with the chunk's own text ranks it first: the hash
	// embedder maps identical text to the identical vector
	chunk := resp.Results[0]
	query := chunk.Doc + "\n" + chunk.Content
	semantic, err := p.searcher.Search(ctx, searcher.Request{Query: query, Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, semantic.Results)
	assert.Equal(t, chunk.ID, semantic.Results[0].ID)
	assert.InDelta(t, 1.0, semantic.Results[0].Score, 1e-6)
}

func TestPipeline_ReindexKeepsStoreConsistent(t *testing.T) {
	p := newPipeline(t)
	dir := writeTree(t)
	ctx := context.Background()

	first, err := p.ingestor.IndexDirectory(ctx, dir)
	require.NoError(t, err)

	// Removing a function and re-indexing must drop its chunk everywhere
	rewritten := `package auth

// ValidateToken checks a bearer token and returns its subject.
func ValidateToken(token string) (string, error) {
	return parse(token)
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "internal", "auth", "token.go"), []byte(rewritten), 0644))

	second, err := p.ingestor.IndexDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, first.Inserted, second.Replaced)

	status, err := p.store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.ChunkCount, status.VectorCount)

	// The removed declaration is gone from keyword search
	resp, err := p.searcher.Search(ctx, searcher.Request{Query: "RefreshToken", Mode: searcher.ModeKeyword})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestPipeline_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chopgrep.db")
	dir := writeTree(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	emb := embedder.NewHashProvider(testDim, nil)
	sc := chunker.NewScanner(chunker.New(0, 0), chunker.ScanConfig{}, logger)

	st, err := store.Open(dbPath, testDim)
	require.NoError(t, err)
	ing := ingest.New(st, emb, sc, ingest.Config{}, logger)
	stats, err := ing.IndexDirectory(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// Reopen with the same dimension and query what the first run stored
	st, err = store.Open(dbPath, testDim)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	status, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Inserted, status.ChunkCount)

	// Reopening with another dimension is rejected before any mutation
	_, err = store.Open(dbPath, testDim*2)
	assert.ErrorIs(t, err, store.ErrDimensionChanged)
}
