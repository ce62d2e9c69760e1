// Package ingest coordinates the indexing pipeline: scanning a directory
// into chunks, embedding them, and storing metadata and vectors in batches.
//
// # Basic Usage
//
//	ing := ingest.New(st, emb, scanner, ingest.Config{}, logger)
//	stats, err := ing.IndexDirectory(ctx, "/repo")
//
// Re-running over the same tree replaces the chunks of every file seen,
// so the index never accumulates duplicates. Only one run may be active
// at a time; a second caller gets ErrIndexInProgress.
//
// # Failure Policy
//
// When the embedding provider fails for a chunk, the configured
// FailurePolicy decides what happens:
//   - FailFast (default): abort the run; batches committed before the
//     failure stay committed
//   - SkipChunk: drop the chunk and keep going
//   - ZeroVector: store the chunk with an all-zero embedding so it stays
//     reachable by keyword search; zero vectors rank last in similarity
//     queries
//
// The policy is an explicit choice per run, never a silent default.
package ingest
