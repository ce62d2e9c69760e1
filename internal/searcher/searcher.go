package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/store"
)

// Mode selects how a query is matched against the index
type Mode string

const (
	// ModeSemantic embeds the query and ranks chunks by cosine distance
	ModeSemantic Mode = "semantic"
	// ModeKeyword runs BM25 full-text search over chunk content
	ModeKeyword Mode = "keyword"
)

// Limits applied to search requests
const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// DefaultCacheTTL bounds how long a cached response stays valid
const DefaultCacheTTL = time.Hour

// queryCacheSize is the number of responses kept in the LRU cache
const queryCacheSize = 1000

var (
	// ErrEmptyQuery is returned when the query text is empty
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrUnknownMode is returned for a search mode that is neither
	// semantic nor keyword
	ErrUnknownMode = errors.New("unknown search mode")
)

// Request describes one search invocation
type Request struct {
	Query    string
	Limit    int           // max results; <= 0 uses DefaultLimit, capped at MaxLimit
	Mode     Mode          // empty defaults to ModeSemantic
	UseCache bool          // serve repeated queries from the response cache
	CacheTTL time.Duration // cache entry lifetime; <= 0 uses DefaultCacheTTL
}

// Result is one ranked chunk. Score is a relevance in [0, 1], higher is
// better, comparable only within a single mode.
type Result struct {
	store.Chunk
	Score float64
	Rank  int
}

// Response carries the ranked results and metadata about the search
type Response struct {
	Results  []Result
	Mode     Mode
	Duration time.Duration
	CacheHit bool
}

// cacheEntry is a cached response with its expiry
type cacheEntry struct {
	response  Response
	expiresAt time.Time
}

// Searcher answers text queries against the chunk store, embedding the
// query for semantic mode and passing it through for keyword mode.
type Searcher struct {
	store    store.Store
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, cacheEntry]
}

// New creates a Searcher over the given store and embedder
func New(st store.Store, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, cacheEntry](queryCacheSize)
	if err != nil {
		// Unreachable with a positive size
		panic(fmt.Sprintf("failed to create query cache: %v", err))
	}
	return &Searcher{
		store:    st,
		embedder: emb,
		cache:    cache,
	}
}

// Search runs one query and returns ranked results. Repeated queries with
// UseCache set are answered from the cache until the entry expires or is
// evicted.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := normalizeRequest(&req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	if req.UseCache {
		if entry, ok := s.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
			resp := entry.response
			resp.CacheHit = true
			resp.Duration = time.Since(start)
			return &resp, nil
		}
	}

	var results []Result
	var err error
	switch req.Mode {
	case ModeSemantic:
		results, err = s.semanticSearch(ctx, req)
	case ModeKeyword:
		results, err = s.keywordSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Results:  results,
		Mode:     req.Mode,
		Duration: time.Since(start),
	}

	if req.UseCache && len(results) > 0 {
		s.cache.Add(key, cacheEntry{
			response:  *resp,
			expiresAt: time.Now().Add(req.CacheTTL),
		})
	}

	return resp, nil
}

// InvalidateCache drops all cached responses. Callers invoke this after
// mutating the index so stale rankings are not served.
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

// semanticSearch embeds the query and ranks by cosine distance. The
// distance in [0, 2] maps to a score in [0, 1] with 1 for an identical
// direction.
func (s *Searcher) semanticSearch(ctx context.Context, req Request) ([]Result, error) {
	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vector, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			Chunk: hit.Chunk,
			Score: 1 - hit.Distance/2,
			Rank:  i + 1,
		}
	}
	return results, nil
}

// keywordSearch runs BM25 full-text search; the store already normalizes
// scores to [0, 1]
func (s *Searcher) keywordSearch(ctx context.Context, req Request) ([]Result, error) {
	hits, err := s.store.SearchText(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			Chunk: hit.Chunk,
			Score: hit.Score,
			Rank:  i + 1,
		}
	}
	return results, nil
}

// normalizeRequest validates the request and fills defaults in place
func normalizeRequest(req *Request) error {
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = ModeSemantic
	}
	if req.Mode != ModeSemantic && req.Mode != ModeKeyword {
		return fmt.Errorf("%w: %s", ErrUnknownMode, req.Mode)
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// cacheKey hashes the parameters that determine a response
func cacheKey(req Request) [32]byte {
	return sha256.Sum256([]byte(string(req.Mode) + "\x00" + strconv.Itoa(req.Limit) + "\x00" + req.Query))
}
