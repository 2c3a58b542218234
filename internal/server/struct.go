package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pedaragy/pedaragy-go/internal/cache"
	"github.com/pedaragy/pedaragy-go/internal/engine"
	"github.com/pedaragy/pedaragy-go/internal/ingestion"
	"github.com/pedaragy/pedaragy-go/internal/retrieval"
	"github.com/pedaragy/pedaragy-go/internal/store"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full cache-miss ask, which includes an LLM call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// Defaults to prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// QueryLog, when non-nil, records every ask and ingest for later audit.
	// Logging failures are warned about and never fail the request.
	QueryLog store.QueryLog
}

// ragEngine is the interface the handlers call to answer, ingest, and search.
// *engine.Engine satisfies it; tests inject a fake.
type ragEngine interface {
	Ask(ctx context.Context, query, mode, modelName string) (*engine.AskResult, error)
	Ingest(ctx context.Context, path string, progress func(string)) (*ingestion.Result, error)
	IngestText(ctx context.Context, documentID, text string, metadata map[string]string) (*ingestion.Result, error)
	RawSearch(ctx context.Context, query string, topK int, filter *vectorindex.Filter, minScore float32) ([]retrieval.Result, error)
	CacheStats(ctx context.Context) (*cache.Stats, error)
	CacheClear(ctx context.Context) error
}

// Server is the HTTP server that fronts the RAG engine.
type Server struct {
	// engine handles all ask, ingest, and search operations.
	engine ragEngine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// queryLog is the optional audit log for asks and ingests. May be nil.
	queryLog store.QueryLog
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the student's question.
	Query string `json:"query"`
	// Mode selects the response style: "explain", "quiz", or "hint".
	// Empty defaults to "explain".
	Mode string `json:"mode,omitempty"`
	// Model overrides the configured generation model for this request.
	Model string `json:"model,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest. Exactly one of Path
// or Text must be set. Path ingests a file readable by the server process;
// Text ingests inline content under DocumentID.
type ingestRequest struct {
	// Path is a server-local file to extract and index.
	Path string `json:"path,omitempty"`
	// DocumentID names inline content; chunk ids are derived from it.
	DocumentID string `json:"document_id,omitempty"`
	// Text is inline content to index.
	Text string `json:"text,omitempty"`
	// Metadata is attached to every chunk of the document.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the text to search for.
	Query string `json:"query"`
	// TopK caps the number of results. Zero uses the engine default.
	TopK int `json:"top_k,omitempty"`
	// Source restricts results to chunks from one document.
	Source string `json:"source,omitempty"`
	// MinScore drops results below this similarity.
	MinScore float32 `json:"min_score,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Query echoes the searched text.
	Query string `json:"query"`
	// Results are the matching chunks, best first.
	Results []retrieval.Result `json:"results"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Asks are the most recent logged asks, newest first.
	Asks []askHistoryEntry `json:"asks"`
}

// askHistoryEntry is one logged ask in a history response.
type askHistoryEntry struct {
	Query      string    `json:"query"`
	Mode       string    `json:"mode"`
	Model      string    `json:"model,omitempty"`
	Cached     bool      `json:"cached"`
	Similarity float32   `json:"similarity,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
