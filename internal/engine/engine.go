// Package engine orchestrates the query path: semantic-cache lookup as the
// fast path, then retrieval plus answer generation on a miss, then a cache
// store so the next similar question is served without an LLM call. It also
// fronts ingestion and raw search for the CLI and HTTP layers.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedaragy/pedaragy-go/internal/budget"
	"github.com/pedaragy/pedaragy-go/internal/cache"
	"github.com/pedaragy/pedaragy-go/internal/ingestion"
	"github.com/pedaragy/pedaragy-go/internal/logging"
	"github.com/pedaragy/pedaragy-go/internal/retrieval"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// Config holds the engine's query-path tuning.
type Config struct {
	// TopK is the number of chunks retrieved per question.
	// Defaults to retrieval.DefaultTopK if zero.
	TopK int

	// MinScore drops retrieved chunks below this similarity before they
	// reach the prompt.
	MinScore float32

	// MaxContextTokens caps the estimated token size of the retrieval
	// context in the prompt. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// AskResult is the outcome of one Ask call.
type AskResult struct {
	// Answer is the generated or cached response text.
	Answer string `json:"answer"`

	// Cached reports whether the answer came from the semantic cache.
	Cached bool `json:"cached"`

	// SimilarityScore is the cache-match similarity. Only meaningful when
	// Cached is true.
	SimilarityScore float32 `json:"similarity_score,omitempty"`

	// OriginalQuery is the cached entry's query text when Cached is true.
	OriginalQuery string `json:"original_query,omitempty"`

	// Mode is the normalized response mode the answer was produced in.
	Mode string `json:"mode"`
}

// Engine wires the retrieval engine, semantic cache, ingestion pipeline,
// and answer generator into the operations the CLI and HTTP API expose.
// Stateless per request; safe for concurrent use.
type Engine struct {
	retriever *retrieval.Engine
	cache     *cache.Cache
	pipeline  *ingestion.Pipeline
	generator Generator
	cfg       *Config
}

// New constructs an Engine. All dependencies are required.
func New(retriever *retrieval.Engine, c *cache.Cache, pipeline *ingestion.Pipeline, gen Generator, cfg *Config) (*Engine, error) {
	if retriever == nil || c == nil || pipeline == nil || gen == nil {
		return nil, fmt.Errorf("engine: all dependencies must be non-nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Engine{
		retriever: retriever,
		cache:     c,
		pipeline:  pipeline,
		generator: gen,
		cfg:       cfg,
	}, nil
}

// Ask answers a question. The semantic cache is consulted first; on a miss
// the engine retrieves context, generates an answer with the selected model,
// and stores the result for future similar questions. A cache read failure
// degrades to a miss rather than failing the request; a generation failure
// is surfaced.
func (e *Engine) Ask(ctx context.Context, query, mode, modelName string) (*AskResult, error) {
	log := logging.FromContext(ctx)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("engine: query must not be empty")
	}
	mode = NormalizeMode(mode)

	hit, err := e.cache.Lookup(ctx, query, mode)
	if err != nil {
		// The cache is an optimization. Fall through to full retrieval.
		log.Warn("engine: cache lookup failed, treating as miss", "error", err)
	}
	if hit != nil {
		return &AskResult{
			Answer:          hit.Response,
			Cached:          true,
			SimilarityScore: hit.SimilarityScore,
			OriginalQuery:   hit.OriginalQuery,
			Mode:            mode,
		}, nil
	}

	results, err := e.retriever.Search(ctx, query, e.cfg.TopK, nil, e.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("engine: retrieve context: %w", err)
	}
	contextText := joinContext(results, e.cfg.MaxContextTokens)

	prompt := BuildPrompt(mode, contextText, query)
	answer, err := e.generator.Generate(ctx, prompt, modelName)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Store(ctx, query, mode, contextText, answer); err != nil {
		// The answer is already computed; a failed store only costs the
		// next caller a regeneration.
		log.Warn("engine: cache store failed", "error", err)
	}

	return &AskResult{Answer: answer, Mode: mode}, nil
}

// Ingest extracts and indexes the document at path.
func (e *Engine) Ingest(ctx context.Context, path string, progress func(string)) (*ingestion.Result, error) {
	return e.pipeline.IngestFile(ctx, path, progress)
}

// IngestText indexes raw text under the given document id.
func (e *Engine) IngestText(ctx context.Context, documentID, text string, metadata map[string]string) (*ingestion.Result, error) {
	return e.pipeline.IngestText(ctx, documentID, text, metadata)
}

// RawSearch exposes the retrieval engine directly, bypassing cache and
// generation.
func (e *Engine) RawSearch(ctx context.Context, query string, topK int, filter *vectorindex.Filter, minScore float32) ([]retrieval.Result, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	return e.retriever.Search(ctx, query, topK, filter, minScore)
}

// CacheStats reports the semantic cache's size and configuration.
func (e *Engine) CacheStats(ctx context.Context) (*cache.Stats, error) {
	return e.cache.Stats(ctx)
}

// CacheClear flushes the semantic cache.
func (e *Engine) CacheClear(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// joinContext concatenates retrieved chunk texts into the prompt context,
// dropping the least relevant chunks when the token budget is exceeded.
func joinContext(results []retrieval.Result, maxTokens int) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return strings.Join(budget.TrimChunks(texts, maxTokens), "\n\n")
}
