// Package store persists chunks and their embeddings in SQLite and answers
// nearest-neighbor queries over them.
//
// Each chunk lives in two places: a metadata row in the chunks table (file
// location, content, doc comment, embedding blob) and a mirror row in the
// chunk_vectors table that the similarity search scans. Every mutation
// updates both inside one transaction, so after any committed operation the
// two tables are bijective: no vector without its chunk, no chunk without
// its vector. Replacements delete and reinsert the mirror row rather than
// updating it in place.
//
// # Basic Usage
//
//	st, err := store.Open("chopgrep.db", 384)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	id, err := st.InsertChunk(ctx, &store.Chunk{
//	    FileName:  "sqlite.go",
//	    FilePath:  "internal/store/sqlite.go",
//	    Content:   "func Open(...) ...",
//	    Embedding: vector, // must have length 384
//	})
//
//	results, err := st.Search(ctx, queryVector, 10)
//
// # Dimension Enforcement
//
// The embedding dimension is fixed when the database is created and checked
// on every insert, update, and query; a mismatched vector fails with
// ErrDimensionMismatch, never silently truncated or padded. Reopening an
// existing database with a different dimension fails with
// ErrDimensionChanged.
//
// # Bulk Ingestion
//
// BulkInsert commits consecutive batches as independent transactions. When
// a batch fails, earlier batches stay committed and the returned
// *BatchError reports the failed batch index and the committed count; the
// caller decides whether to resume or abandon the prefix.
//
// # Search
//
// Search ranks by cosine distance ascending with ties broken by chunk ID,
// so repeated queries over an unchanged index return identical orderings.
// SearchText offers BM25 full-text search over the same chunks via an FTS5
// index kept in sync by SQLite triggers.
//
// Two build modes exist, selected by build tags: the default purego build
// (modernc.org/sqlite) computes distances in Go over a full scan, and the
// sqlite_vec cgo build (mattn/go-sqlite3) pushes the distance computation
// into SQL. Both produce the same ordering contract.
package store
