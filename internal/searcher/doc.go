// Package searcher answers text queries against the chunk store.
//
// Two modes are available:
//   - Semantic: the query is embedded and chunks are ranked by cosine
//     distance to the query vector. Best for conceptual queries
//     ("where do we retry failed requests").
//   - Keyword: BM25 full-text search over chunk content. Best for exact
//     identifiers ("retryWithBackoff"); needs no embedding provider.
//
// # Basic Usage
//
//	s := searcher.New(st, emb)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: "open the database and run migrations",
//	    Limit: 10,
//	    Mode:  searcher.ModeSemantic,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.2f %s %s\n", r.Rank, r.Score, r.FilePath, r.EntityName)
//	}
//
// Scores are normalized to [0, 1] with higher meaning more relevant, but
// they are only comparable within one mode.
//
// # Caching
//
// With Request.UseCache set, responses are kept in an LRU cache keyed by
// mode, limit, and query text, and served until the entry's TTL expires.
// Callers that mutate the index should call InvalidateCache afterwards.
package searcher
