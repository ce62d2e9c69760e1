package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// vectorHit is a vector index row with its distance to the query
type vectorHit struct {
	chunkID  int64
	distance float64
}

// textHit is an FTS match with its normalized score
type textHit struct {
	chunkID int64
	score   float64
}

// searchVector performs k-nearest-neighbor search over the vector index
// by cosine distance
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, k int) ([]vectorHit, error) {
	// Use SQL-based distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, k)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, queryVector, k)
}

// searchVectorOptimized uses the sqlite-vec extension to compute cosine
// distance at the database layer. Ordering by distance then chunk_id keeps
// ties deterministic across runs.
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, k int) ([]vectorHit, error) {
	queryBlob := serializeVector(queryVector)

	query := `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM chunk_vectors
		ORDER BY distance, chunk_id
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, queryBlob, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]vectorHit, 0, k)
	for rows.Next() {
		var hit vectorHit
		if err := rows.Scan(&hit.chunkID, &hit.distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchVectorFallback scans the vector index and computes cosine distance
// in Go. Used when the sqlite-vec extension is not compiled in.
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, k int) ([]vectorHit, error) {
	rows, err := db.QueryContext(ctx, `SELECT chunk_id, embedding FROM chunk_vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]vectorHit, 0, 1000)
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // stale row from a foreign index, skip
		}

		hits = append(hits, vectorHit{chunkID: chunkID, distance: cosineDistance(queryVector, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ascending distance; equal distances resolve by insertion order
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].chunkID < hits[j].chunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// searchTextIndex performs BM25 full-text search using FTS5
func searchTextIndex(ctx context.Context, db *sql.DB, query string, k int) ([]textHit, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	// Note: In FTS5, 'rank' is a built-in virtual column representing BM25
	// relevance. Lower rank values indicate better matches (negative values).
	sqlQuery := `
		SELECT chunks_fts.rowid, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, sqlQuery, sanitized, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]textHit, 0, k)
	for rows.Next() {
		var hit textHit
		if err := rows.Scan(&hit.chunkID, &hit.score); err != nil {
			return nil, err
		}

		// Convert BM25 score (negative, lower is better) to a positive
		// normalized score. BM25 scores are typically in range [-50, 0].
		hit.score = 1.0 / (1.0 + math.Abs(hit.score)/50.0)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// A zero vector has no direction and similarity 0 with everything.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity: 0 for identical direction,
// 1 for orthogonal, 2 for opposite
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// FTS5 operator pattern for escaping Boolean operators
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// sanitizeFTSQuery sanitizes a search query for FTS5 to prevent injection
// attacks. Escapes special FTS5 operators and characters.
func sanitizeFTSQuery(query string) string {
	if query == "" {
		return ""
	}

	replacer := strings.NewReplacer(
		`"`, `\"`,
		`*`, `\*`,
		`(`, `\(`,
		`)`, `\)`,
	)
	escaped := replacer.Replace(query)

	escaped = ftsOperatorPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		return `\` + match
	})

	return escaped
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

// CosineDistance is an exported helper for testing
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b)
}
