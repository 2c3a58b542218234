// Package cache implements a semantic cache for query-response pairs.
// Entries are keyed by embedding similarity rather than exact text: a lookup
// embeds the incoming query, asks the vector index for the single nearest
// cached entry, and serves it only if the similarity clears a configurable
// threshold AND the response mode matches exactly. Mode is deliberately
// excluded from the embedding; topically similar questions asked in
// different modes must not collide.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pedaragy/pedaragy-go/internal/embedder"
	"github.com/pedaragy/pedaragy-go/internal/logging"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// DefaultThreshold is the minimum similarity for a cache hit when the
// caller does not configure one.
const DefaultThreshold = 0.95

// Metadata keys of a cache entry.
const (
	metaOriginalQuery = "original_query"
	metaMode          = "mode"
	metaContext       = "context"
	metaResponse      = "response"
	metaCachedAt      = "cached_at"
	metaQueryHash     = "query_hash"
)

// Hit is a successful cache lookup.
type Hit struct {
	// Response is the previously generated answer.
	Response string

	// Context is the retrieval context the answer was generated from.
	Context string

	// OriginalQuery is the query text that produced the cached entry. It may
	// differ from the incoming query; the match is approximate.
	OriginalQuery string

	// SimilarityScore is the cosine similarity between the incoming query
	// and the cached entry.
	SimilarityScore float32

	// CachedAt is the entry's storage time in RFC 3339.
	CachedAt string
}

// Stats describes the cache index.
type Stats struct {
	TotalVectors        uint64  `json:"total_vectors"`
	Dimension           int     `json:"dimension"`
	Metric              string  `json:"metric"`
	SimilarityThreshold float32 `json:"similarity_threshold"`
}

// Cache is a similarity-keyed response cache over one vector index
// namespace. Safe for concurrent use; all state lives in the index backend.
// Growth is bounded by the deterministic entry id: re-storing the same
// (query, mode) pair overwrites rather than accumulates.
type Cache struct {
	embedder  embedder.Embedder
	index     vectorindex.Index
	namespace string
	threshold float32
}

// New constructs a Cache over the given namespace. A non-positive threshold
// selects DefaultThreshold; an empty namespace selects the index default.
func New(emb embedder.Embedder, index vectorindex.Index, namespace string, threshold float32) *Cache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if namespace == "" {
		namespace = vectorindex.DefaultNamespace
	}
	return &Cache{embedder: emb, index: index, namespace: namespace, threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (c *Cache) Threshold() float32 { return c.threshold }

// Lookup returns the cached response for a query semantically similar to
// queryText in the same mode, or nil for a miss. A miss is a normal
// outcome, not an error; errors are reserved for embedding or index
// failures.
func (c *Cache) Lookup(ctx context.Context, queryText, mode string) (*Hit, error) {
	log := logging.FromContext(ctx)

	vector, err := embedder.One(ctx, c.embedder, queryText)
	if err != nil {
		return nil, fmt.Errorf("cache: embed query: %w", err)
	}

	candidates, err := c.index.Query(ctx, c.namespace, vector, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: query namespace %q: %w", c.namespace, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	if best.Score < c.threshold {
		log.Debug("cache: nearest entry below threshold",
			"similarity", best.Score, "threshold", c.threshold)
		return nil, nil
	}
	if best.Metadata[metaMode] != mode {
		log.Debug("cache: similar query found in different mode",
			"similarity", best.Score, "cached_mode", best.Metadata[metaMode], "mode", mode)
		return nil, nil
	}

	log.Debug("cache: hit", "similarity", best.Score,
		"original_query", best.Metadata[metaOriginalQuery])
	return &Hit{
		Response:        best.Metadata[metaResponse],
		Context:         best.Metadata[metaContext],
		OriginalQuery:   best.Metadata[metaOriginalQuery],
		SimilarityScore: best.Score,
		CachedAt:        best.Metadata[metaCachedAt],
	}, nil
}

// Store caches a query-response pair. The entry id is a content hash of the
// normalized query and the mode, so storing the same pair twice is an
// idempotent overwrite.
func (c *Cache) Store(ctx context.Context, queryText, mode, contextText, response string) error {
	vector, err := embedder.One(ctx, c.embedder, queryText)
	if err != nil {
		return fmt.Errorf("cache: embed query: %w", err)
	}

	hash := queryHash(queryText, mode)
	entry := vectorindex.Vector{
		ID:     "cache_" + hash,
		Values: vector,
		Metadata: map[string]string{
			metaOriginalQuery: queryText,
			metaMode:          mode,
			metaContext:       contextText,
			metaResponse:      response,
			metaCachedAt:      time.Now().UTC().Format(time.RFC3339),
			metaQueryHash:     hash,
		},
	}
	if err := c.index.Upsert(ctx, c.namespace, []vectorindex.Vector{entry}); err != nil {
		return fmt.Errorf("cache: store entry %s: %w", entry.ID, err)
	}
	return nil
}

// Stats reports the cache's size, dimension, and configured threshold.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	raw, err := c.index.Stats(ctx, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("cache: stats for namespace %q: %w", c.namespace, err)
	}
	return &Stats{
		TotalVectors:        raw.Count,
		Dimension:           raw.Dimension,
		Metric:              "cosine",
		SimilarityThreshold: c.threshold,
	}, nil
}

// Clear flushes the whole cache namespace. Full flush, not selective
// eviction.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.index.Clear(ctx, c.namespace); err != nil {
		return fmt.Errorf("cache: clear namespace %q: %w", c.namespace, err)
	}
	return nil
}

// queryHash derives the deterministic entry hash from a query and mode.
// The query is trimmed and lowercased first so trivial whitespace or casing
// differences do not create duplicate entries.
func queryHash(queryText, mode string) string {
	normalized := strings.ToLower(strings.TrimSpace(queryText))
	sum := md5.Sum([]byte(normalized + "_" + mode))
	return hex.EncodeToString(sum[:])
}
