// Package embedder generates vector embeddings for text using pluggable
// providers.
//
// All providers produce vectors of a fixed dimension, normalized to unit
// length so that cosine distance behaves consistently downstream. A failed
// generation is always reported as an error; no provider substitutes a
// placeholder vector for text it could not embed.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    Dimension: 384,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vector, err := emb.Embed(ctx, "func ParseFile(path string) error { ... }")
//
// # Batch Processing
//
// For indexing, batch calls reduce API round trips:
//
//	vectors, err := emb.EmbedBatch(ctx, texts)
//	for i, vector := range vectors {
//	    // vectors are index-aligned with texts
//	}
//
// Batches are capped at MaxBatchSize texts per call; callers split larger
// workloads.
//
// # Provider Selection
//
// With an empty or "auto" provider, New resolves one from the environment:
//
//  1. If CHOPGREP_EMBEDDING_PROVIDER is set, use that provider
//  2. Else if OPENAI_API_KEY is set, use OpenAI
//  3. Else fall back to the hash provider (offline mode)
//
// Available providers:
//
// openai:
//   - Models: text-embedding-3-small (default), text-embedding-3-large
//   - The text-embedding-3 family supports server-side dimension reduction,
//     so the configured dimension is honored by the API itself
//   - Requires OPENAI_API_KEY; BaseURL targets OpenAI-compatible servers
//
// ollama:
//   - Models: all-minilm (default, 384 dimensions), nomic-embed-text
//   - Talks to a local Ollama server, no API key
//
// hash:
//   - Deterministic vectors from SHA-256, any dimension
//   - No network and no model. Identical texts map to identical vectors,
//     which is enough for exact-duplicate retrieval and for tests, but
//     similarity between different texts is meaningless
//
// # Caching
//
// Providers share an optional LRU cache keyed by the SHA-256 of the text.
// Cache hits are served without touching the provider, and Get returns a
// copy so callers cannot corrupt cached vectors.
//
// # Error Handling
//
// Transient provider failures are retried with exponential backoff. After
// retries are exhausted the error wraps ErrProviderFailed:
//
//	vectors, err := emb.EmbedBatch(ctx, texts)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable; caller decides whether to abort or skip
//	}
package embedder
