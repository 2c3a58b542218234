// Package retrieval turns a natural-language query into a ranked list of
// relevant document chunks. It composes an embedder with a vector index:
// embed the query, delegate nearest-neighbor search to the index, drop
// results below a minimum score, and attach a presentation-friendly
// relevance percentage. Results are never re-ordered relative to the
// index's native ranking.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pedaragy/pedaragy-go/internal/embedder"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// DefaultTopK is the number of results returned when the caller passes
// topK <= 0.
const DefaultTopK = 5

// ErrEmbedding marks a failure in the embedding call. Search returns no
// partial results when embedding fails.
var ErrEmbedding = errors.New("embedding failed")

// Result is one retrieved chunk with its similarity score and the derived
// relevance percentage.
type Result struct {
	// ID is the chunk's vector id in the index.
	ID string `json:"id"`

	// Score is the raw cosine similarity reported by the index.
	Score float32 `json:"score"`

	// RelevancePercentage is Score expressed as a percentage, rounded to
	// two decimal places. Presentation only; filtering and ordering use Score.
	RelevancePercentage float64 `json:"relevance_percentage"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Metadata carries the chunk's stored metadata (source, chunk_index, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Engine performs embedding-indexed search over one index namespace.
// Safe for concurrent use; all state lives in the index backend.
type Engine struct {
	embedder  embedder.Embedder
	index     vectorindex.Index
	namespace string
}

// NewEngine constructs an Engine over the given namespace. An empty
// namespace selects the index default.
func NewEngine(emb embedder.Embedder, index vectorindex.Index, namespace string) *Engine {
	if namespace == "" {
		namespace = vectorindex.DefaultNamespace
	}
	return &Engine{embedder: emb, index: index, namespace: namespace}
}

// Search embeds the query and returns up to topK results with score >=
// minScore, in the index's native ranking order. An empty index yields an
// empty result, not an error.
func (e *Engine) Search(ctx context.Context, query string, topK int, filter *vectorindex.Filter, minScore float32) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := embedder.One(ctx, e.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w: %v", ErrEmbedding, err)
	}

	raw, err := e.index.Query(ctx, e.namespace, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query namespace %q: %w", e.namespace, err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.Score < minScore {
			continue
		}
		results = append(results, Result{
			ID:                  r.ID,
			Score:               r.Score,
			RelevancePercentage: relevancePercentage(r.Score),
			Text:                r.Text,
			Metadata:            r.Metadata,
		})
	}
	return results, nil
}

// SearchBySource restricts Search to chunks whose source metadata equals
// source (e.g. the originating file name).
func (e *Engine) SearchBySource(ctx context.Context, query string, topK int, source string, minScore float32) ([]Result, error) {
	return e.Search(ctx, query, topK, &vectorindex.Filter{
		Equals: map[string]string{"source": source},
	}, minScore)
}

// SearchByDateRange restricts Search to chunks whose indexing timestamp
// falls within [from, to]. A zero from or to leaves that bound open.
func (e *Engine) SearchByDateRange(ctx context.Context, query string, topK int, from, to time.Time, minScore float32) ([]Result, error) {
	return e.Search(ctx, query, topK, &vectorindex.Filter{
		TimestampFrom: from,
		TimestampTo:   to,
	}, minScore)
}

// Stats reports the underlying namespace's vector count and dimension.
func (e *Engine) Stats(ctx context.Context) (*vectorindex.Stats, error) {
	stats, err := e.index.Stats(ctx, e.namespace)
	if err != nil {
		return nil, fmt.Errorf("retrieval: stats for namespace %q: %w", e.namespace, err)
	}
	return stats, nil
}

// relevancePercentage converts a similarity score to a percentage rounded
// to two decimal places.
func relevancePercentage(score float32) float64 {
	return math.Round(float64(score)*10000) / 100
}
