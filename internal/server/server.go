// Package server implements the HTTP server that exposes the RAG engine
// via a REST API: ask, ingest, search, and semantic-cache management, plus
// liveness, readiness, and Prometheus metrics endpoints.
// The server is started by the `pedaragy serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedaragy/pedaragy-go/internal/ingestion"
	"github.com/pedaragy/pedaragy-go/internal/logging"
	"github.com/pedaragy/pedaragy-go/internal/retrieval"
	"github.com/pedaragy/pedaragy-go/internal/store"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// New constructs a Server from the provided engine and config.
func New(eng ragEngine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a cache-miss ask, which waits on the LLM.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:   eng,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		queryLog: cfg.QueryLog,
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Protected routes sit behind rate limiting and Bearer auth; the probe
	// and metrics endpoints stay open so orchestrators can always reach them.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, rl.middleware(authMiddleware(cfg.APIKey, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protected("ask", s.handleAsk))
	mux.Handle("POST /api/ingest", protected("ingest", s.handleIngest))
	mux.Handle("POST /api/search", protected("search", s.handleSearch))
	mux.Handle("GET /api/cache/stats", protected("cache_stats", s.handleCacheStats))
	mux.Handle("DELETE /api/cache/clear", protected("cache_clear", s.handleCacheClear))
	mux.Handle("GET /api/history", protected("history", s.handleHistory))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. It runs the full query path: cache
// lookup, retrieval, generation, and cache store.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.engine.Ask(r.Context(), req.Query, req.Mode, req.Model)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues(outcomeError).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcomeError).Observe(elapsed.Seconds())
		logging.FromContext(r.Context()).Error("ask failed", slog.Any("error", err))
		http.Error(w, "failed to answer question", http.StatusInternalServerError)
		return
	}

	s.metrics.askRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcomeOK).Observe(elapsed.Seconds())
	if res.Cached {
		s.metrics.cacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		s.metrics.cacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	req.Mode = res.Mode
	s.logAsk(r.Context(), req, res.Cached, res.SimilarityScore)
	writeJSON(w, http.StatusOK, res)
}

// handleIngest handles POST /api/ingest for both server-local files and
// inline text.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" && req.Text == "" {
		http.Error(w, "either path or text is required", http.StatusBadRequest)
		return
	}
	if req.Path != "" && req.Text != "" {
		http.Error(w, "path and text are mutually exclusive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx)

	var (
		res *ingestion.Result
		err error
	)
	if req.Path != "" {
		res, err = s.engine.Ingest(ctx, req.Path, nil)
	} else {
		if req.DocumentID == "" {
			http.Error(w, "document_id is required with text", http.StatusBadRequest)
			return
		}
		res, err = s.engine.IngestText(ctx, req.DocumentID, req.Text, req.Metadata)
	}
	if err != nil {
		log.Error("ingest failed", slog.Any("error", err))
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	s.metrics.ingestDocumentsTotal.Inc()
	s.metrics.ingestChunksTotal.Add(float64(res.ChunksIndexed))
	s.logIngest(ctx, res)
	writeJSON(w, http.StatusOK, res)
}

// handleSearch handles POST /api/search: retrieval without cache or
// generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	var filter *vectorindex.Filter
	if req.Source != "" {
		filter = &vectorindex.Filter{Equals: map[string]string{"source": req.Source}}
	}

	results, err := s.engine.RawSearch(r.Context(), req.Query, req.TopK, filter, req.MinScore)
	if err != nil {
		logging.FromContext(r.Context()).Error("search failed", slog.Any("error", err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

// handleCacheStats handles GET /api/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.CacheStats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("cache stats failed", slog.Any("error", err))
		http.Error(w, "cache stats unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCacheClear handles DELETE /api/cache/clear.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CacheClear(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("cache clear failed", slog.Any("error", err))
		http.Error(w, "cache clear failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleHistory handles GET /api/history, returning recent asks from the
// query log. Returns an empty list when no log is configured.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{Asks: []askHistoryEntry{}}
	if s.queryLog != nil {
		recs, err := s.queryLog.RecentAsks(r.Context(), 50)
		if err != nil {
			logging.FromContext(r.Context()).Error("history failed", slog.Any("error", err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		for _, rec := range recs {
			resp.Asks = append(resp.Asks, askHistoryEntry{
				Query:      rec.Query,
				Mode:       rec.Mode,
				Model:      rec.Model,
				Cached:     rec.Cached,
				Similarity: rec.Similarity,
				CreatedAt:  rec.CreatedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logAsk records the ask in the query log, if one is configured.
func (s *Server) logAsk(ctx context.Context, req askRequest, cached bool, similarity float32) {
	if s.queryLog == nil {
		return
	}
	rec := store.AskRecord{
		Query:      strings.TrimSpace(req.Query),
		Mode:       req.Mode,
		Model:      req.Model,
		Cached:     cached,
		Similarity: similarity,
	}
	if err := s.queryLog.LogAsk(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("query log: ask not recorded", slog.Any("error", err))
	}
}

// logIngest records the ingestion in the query log, if one is configured.
func (s *Server) logIngest(ctx context.Context, res *ingestion.Result) {
	if s.queryLog == nil {
		return
	}
	rec := store.IngestRecord{
		DocumentID: res.DocumentID,
		Source:     res.Source,
		Chunks:     res.ChunksIndexed,
	}
	if err := s.queryLog.LogIngest(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("query log: ingest not recorded", slog.Any("error", err))
	}
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
