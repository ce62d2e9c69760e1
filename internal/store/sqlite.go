package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested chunk doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when an embedding's length differs
	// from the dimension the store was opened with
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrDimensionChanged is returned by Open when the database was built
	// with a different embedding dimension
	ErrDimensionChanged = errors.New("embedding dimension changed")
	// ErrStorageBusy is returned when the database is locked by another
	// connection and the busy timeout elapsed
	ErrStorageBusy = errors.New("storage busy")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait for locks held by other connections instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys so mirror rows cannot outlive their chunks
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens or creates a chunk store at dbPath. The schema is created or
// migrated as needed. If the database already holds vectors of a different
// dimension, Open fails with ErrDimensionChanged and leaves it untouched.
func Open(dbPath string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", mapBusyErr(err))
	}

	ctx := context.Background()
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := ensureVectorConfig(ctx, db, dimension); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, dimension: dimension}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dimension returns the embedding dimension the store enforces
func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// on error. All chunk mutations go through here so metadata and mirror
// changes land in the same atomic unit.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapBusyErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapBusyErr(err)
	}
	return nil
}

// mapBusyErr converts SQLite lock contention into ErrStorageBusy so callers
// can distinguish transient contention from permanent failures. Both drivers
// report contention through the error message only.
func mapBusyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %s", ErrStorageBusy, msg)
	}
	return err
}

// validateEmbedding checks an embedding against the configured dimension
func (s *SQLiteStore) validateEmbedding(embedding []float32) error {
	if len(embedding) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dimension)
	}
	return nil
}

// syncMirror brings the vector index row for chunkID in line with the given
// embedding blob inside the caller's transaction. A nil blob removes the
// row; otherwise the row is deleted and reinserted, never updated in place.
// Every mutation path funnels through here so the chunks table and the
// chunk_vectors table stay bijective.
func (s *SQLiteStore) syncMirror(ctx context.Context, q querier, chunkID int64, embedding []byte) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("failed to clear vector for chunk %d: %w", chunkID, err)
	}
	if embedding == nil {
		return nil
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)`, chunkID, embedding); err != nil {
		return fmt.Errorf("failed to insert vector for chunk %d: %w", chunkID, err)
	}
	return nil
}

// Chunk operations

// insertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	if err := s.validateEmbedding(chunk.Embedding); err != nil {
		return err
	}

	blob := serializeVector(chunk.Embedding)
	query := `
		INSERT INTO chunks (file_name, file_path, content, doc, parent_path, entity_name, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.FileName, chunk.FilePath, chunk.Content,
		nullableText(chunk.Doc), nullableText(chunk.ParentPath), nullableText(chunk.EntityName),
		blob, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	chunk.ID = id
	chunk.CreatedAt = now
	chunk.UpdatedAt = now

	return s.syncMirror(ctx, q, id, blob)
}

// InsertChunk persists a single chunk and its vector atomically, returning
// the assigned ID
func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *Chunk) (int64, error) {
	err := s.withTx(ctx, func(q querier) error {
		return s.insertChunkWithQuerier(ctx, q, chunk)
	})
	if err != nil {
		return 0, err
	}
	return chunk.ID, nil
}

// BulkInsert persists chunks in consecutive batches of batchSize, each batch
// in its own transaction. Batches are independent: when a batch fails, the
// previously committed batches remain in place and the error is a
// *BatchError identifying the failed batch and the committed count.
// A batchSize <= 0 falls back to DefaultBatchSize.
func (s *SQLiteStore) BulkInsert(ctx context.Context, chunks []*Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	committed := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		err := s.withTx(ctx, func(q querier) error {
			for _, chunk := range batch {
				if err := s.insertChunkWithQuerier(ctx, q, chunk); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return committed, &BatchError{Batch: start / batchSize, Committed: committed, Err: err}
		}
		committed += len(batch)
	}
	return committed, nil
}

// updateChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) updateChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	if err := s.validateEmbedding(chunk.Embedding); err != nil {
		return err
	}

	blob := serializeVector(chunk.Embedding)
	query := `
		UPDATE chunks
		SET file_name = ?, file_path = ?, content = ?, doc = ?, parent_path = ?, entity_name = ?,
		    embedding = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.FileName, chunk.FilePath, chunk.Content,
		nullableText(chunk.Doc), nullableText(chunk.ParentPath), nullableText(chunk.EntityName),
		blob, now, chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	chunk.UpdatedAt = now

	return s.syncMirror(ctx, q, chunk.ID, blob)
}

// UpdateChunk replaces the stored chunk with the given one by ID. The vector
// index entry is replaced in the same transaction.
func (s *SQLiteStore) UpdateChunk(ctx context.Context, chunk *Chunk) error {
	return s.withTx(ctx, func(q querier) error {
		return s.updateChunkWithQuerier(ctx, q, chunk)
	})
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	query := `
		SELECT id, file_name, file_path, content, doc, parent_path, entity_name, embedding,
		       created_at, updated_at
		FROM chunks
		WHERE id = ?
	`
	var chunk Chunk
	var doc, parentPath, entityName sql.NullString
	var blob []byte
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.FileName, &chunk.FilePath, &chunk.Content,
		&doc, &parentPath, &entityName, &blob,
		&chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Valid {
		chunk.Doc = doc.String
	}
	if parentPath.Valid {
		chunk.ParentPath = parentPath.String
	}
	if entityName.Valid {
		chunk.EntityName = entityName.String
	}
	chunk.Embedding = deserializeVector(blob)
	return &chunk, nil
}

// GetChunk retrieves a chunk by ID
func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// ListChunksByFile returns all chunks stored for a file path in ID order
func (s *SQLiteStore) ListChunksByFile(ctx context.Context, filePath string) ([]*Chunk, error) {
	query := `
		SELECT id, file_name, file_path, content, doc, parent_path, entity_name, embedding,
		       created_at, updated_at
		FROM chunks
		WHERE file_path = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		var chunk Chunk
		var doc, parentPath, entityName sql.NullString
		var blob []byte

		err := rows.Scan(
			&chunk.ID, &chunk.FileName, &chunk.FilePath, &chunk.Content,
			&doc, &parentPath, &entityName, &blob,
			&chunk.CreatedAt, &chunk.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if doc.Valid {
			chunk.Doc = doc.String
		}
		if parentPath.Valid {
			chunk.ParentPath = parentPath.String
		}
		if entityName.Valid {
			chunk.EntityName = entityName.String
		}
		chunk.Embedding = deserializeVector(blob)

		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// deleteChunkWithQuerier is the internal implementation that uses a querier.
// The mirror row goes first so the foreign key never dangles.
func (s *SQLiteStore) deleteChunkWithQuerier(ctx context.Context, q querier, chunkID int64) error {
	if err := s.syncMirror(ctx, q, chunkID, nil); err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, chunkID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChunk removes a chunk and its vector index entry atomically
func (s *SQLiteStore) DeleteChunk(ctx context.Context, chunkID int64) error {
	return s.withTx(ctx, func(q querier) error {
		return s.deleteChunkWithQuerier(ctx, q, chunkID)
	})
}

// DeleteChunksByFile removes every chunk stored for a file path along with
// its vector index entries, returning the number of chunks removed
func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, filePath string) (int, error) {
	deleted := 0
	err := s.withTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, filePath)
		if err != nil {
			return err
		}
		ids := make([]int64, 0)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, id := range ids {
			if err := s.syncMirror(ctx, q, id, nil); err != nil {
				return err
			}
		}

		result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath)
		if err != nil {
			return fmt.Errorf("failed to delete chunks for %s: %w", filePath, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Search operations

// Search returns the k chunks nearest to the query vector by cosine
// distance, ascending, with ties broken by ascending chunk ID. A k <= 0
// yields an empty result. Chunks deleted between the index scan and the
// metadata join are silently skipped.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if err := s.validateEmbedding(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	hits, err := searchVector(ctx, s.db, query, k)
	if err != nil {
		return nil, mapBusyErr(err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.getChunkWithQuerier(ctx, s.querier(), hit.chunkID)
		if errors.Is(err, ErrNotFound) {
			continue // removed since the index scan
		}
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: *chunk, Distance: hit.distance})
	}
	return results, nil
}

// SearchText returns up to k chunks matching the FTS5 query, best BM25
// score first
func (s *SQLiteStore) SearchText(ctx context.Context, query string, k int) ([]TextResult, error) {
	if k <= 0 {
		return []TextResult{}, nil
	}

	hits, err := searchTextIndex(ctx, s.db, query, k)
	if err != nil {
		return nil, mapBusyErr(err)
	}

	results := make([]TextResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.getChunkWithQuerier(ctx, s.querier(), hit.chunkID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, TextResult{Chunk: *chunk, Score: hit.score})
	}
	return results, nil
}

// Status operations

// Status reports row counts, index size, and health of the store
func (s *SQLiteStore) Status(ctx context.Context) (*Status, error) {
	status := &Status{Dimension: s.dimension}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunkCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_vectors").Scan(&status.VectorCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT file_path) FROM chunks").Scan(&status.FileCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		VectorsInSync:      status.ChunkCount == status.VectorCount,
		FTSIndexBuilt:      true, // FTS index is created with migrations
	}

	return status, nil
}

// nullableText maps empty strings to NULL for optional text columns
func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
