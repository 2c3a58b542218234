package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pedaragy/pedaragy-go/internal/cache"
	"github.com/pedaragy/pedaragy-go/internal/engine"
	"github.com/pedaragy/pedaragy-go/internal/ingestion"
	"github.com/pedaragy/pedaragy-go/internal/retrieval"
	"github.com/pedaragy/pedaragy-go/internal/store"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// ---------------------------------------------------------------------------
// Fake engine for handler tests
// ---------------------------------------------------------------------------

// fakeEngine implements the ragEngine interface for tests. Each method
// returns its configured result and records the arguments it was called with.
type fakeEngine struct {
	askResult *engine.AskResult
	askErr    error
	// askQuery, askMode, askModel record the last Ask call.
	askQuery, askMode, askModel string

	ingestResult *ingestion.Result
	ingestErr    error
	// ingestPath and ingestDocID record the last ingest call.
	ingestPath, ingestDocID string

	searchResults []retrieval.Result
	searchErr     error
	// searchFilter records the filter passed to the last RawSearch call.
	searchFilter *vectorindex.Filter

	stats    *cache.Stats
	statsErr error

	cleared  bool
	clearErr error
}

func (f *fakeEngine) Ask(_ context.Context, query, mode, modelName string) (*engine.AskResult, error) {
	f.askQuery, f.askMode, f.askModel = query, mode, modelName
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.askResult != nil {
		return f.askResult, nil
	}
	return &engine.AskResult{Answer: "an answer", Mode: "explain"}, nil
}

func (f *fakeEngine) Ingest(_ context.Context, path string, _ func(string)) (*ingestion.Result, error) {
	f.ingestPath = path
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	if f.ingestResult != nil {
		return f.ingestResult, nil
	}
	return &ingestion.Result{DocumentID: path, Source: path, ChunksIndexed: 1}, nil
}

func (f *fakeEngine) IngestText(_ context.Context, documentID, _ string, _ map[string]string) (*ingestion.Result, error) {
	f.ingestDocID = documentID
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	if f.ingestResult != nil {
		return f.ingestResult, nil
	}
	return &ingestion.Result{DocumentID: documentID, Source: documentID, ChunksIndexed: 2}, nil
}

func (f *fakeEngine) RawSearch(_ context.Context, _ string, _ int, filter *vectorindex.Filter, _ float32) ([]retrieval.Result, error) {
	f.searchFilter = filter
	return f.searchResults, f.searchErr
}

func (f *fakeEngine) CacheStats(_ context.Context) (*cache.Stats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &cache.Stats{TotalVectors: 0, Metric: "cosine", SimilarityThreshold: 0.95}, nil
}

func (f *fakeEngine) CacheClear(_ context.Context) error {
	f.cleared = true
	return f.clearErr
}

// newTestServer builds a *Server with a default fake engine and an isolated
// metrics registry.
func newTestServer() *Server {
	return newTestServerWith(&fakeEngine{})
}

// newTestServerWith builds a *Server wired with the given engine fake.
func newTestServerWith(eng ragEngine) *Server {
	return &Server{
		engine:  eng,
		cfg:     &Config{Port: 8080},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask
// ---------------------------------------------------------------------------

func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`not-json`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"mode":"quiz"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_Success(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{askResult: &engine.AskResult{
		Answer:          "DNA is the molecule of heredity.",
		Cached:          true,
		SimilarityScore: 0.97,
		OriginalQuery:   "what is dna",
		Mode:            "explain",
	}}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"what is DNA?","mode":"explain","model":"mistral"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var res engine.AskResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Cached {
		t.Error("expected cached:true")
	}
	if res.Answer != "DNA is the molecule of heredity." {
		t.Errorf("answer: got %q", res.Answer)
	}

	if fe.askQuery != "what is DNA?" || fe.askMode != "explain" || fe.askModel != "mistral" {
		t.Errorf("engine called with (%q, %q, %q)", fe.askQuery, fe.askMode, fe.askModel)
	}
}

func TestHandleAsk_EngineError(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeEngine{askErr: fmt.Errorf("model offline")})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"what is dna"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	// The raw engine error must not leak to the client.
	if strings.Contains(w.Body.String(), "model offline") {
		t.Errorf("error detail leaked: %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/ingest
// ---------------------------------------------------------------------------

func TestHandleIngest_TextSuccess(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"document_id":"bio.txt","text":"Chapter 1 Cells"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fe.ingestDocID != "bio.txt" {
		t.Errorf("document id: got %q", fe.ingestDocID)
	}

	var res ingestion.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ChunksIndexed != 2 {
		t.Errorf("chunks indexed: got %d", res.ChunksIndexed)
	}
}

func TestHandleIngest_PathSuccess(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"path":"/data/bio.pdf"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fe.ingestPath != "/data/bio.pdf" {
		t.Errorf("path: got %q", fe.ingestPath)
	}
}

func TestHandleIngest_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"neither path nor text", `{}`},
		{"both path and text", `{"path":"/a","document_id":"d","text":"t"}`},
		{"text without document_id", `{"text":"content"}`},
		{"invalid json", `{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			s.handleIngest(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandleIngest_EngineError(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeEngine{ingestErr: fmt.Errorf("embedding backend down")})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"document_id":"bio.txt","text":"content"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

func TestHandleSearch_Success(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{searchResults: []retrieval.Result{
		{ID: "bio.txt_0", Score: 0.91, RelevancePercentage: 91, Text: "Chapter 1 Cells"},
	}}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"cells","top_k":3}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var res searchResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Query != "cells" {
		t.Errorf("query echo: got %q", res.Query)
	}
	if len(res.Results) != 1 || res.Results[0].ID != "bio.txt_0" {
		t.Errorf("results: %+v", res.Results)
	}
	if fe.searchFilter != nil {
		t.Errorf("expected no filter without source, got %+v", fe.searchFilter)
	}
}

func TestHandleSearch_SourceFilter(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"cells","source":"bio.txt"}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fe.searchFilter == nil || fe.searchFilter.Equals["source"] != "bio.txt" {
		t.Errorf("source filter not forwarded: %+v", fe.searchFilter)
	}
}

func TestHandleSearch_EmptyResultsIsArray(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"nothing indexed"}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// Clients iterate results; null would break them.
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("expected empty array, got: %s", w.Body.String())
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Cache endpoints
// ---------------------------------------------------------------------------

func TestHandleCacheStats(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{stats: &cache.Stats{
		TotalVectors:        7,
		Dimension:           768,
		Metric:              "cosine",
		SimilarityThreshold: 0.95,
	}}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	w := httptest.NewRecorder()

	s.handleCacheStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stats cache.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalVectors != 7 || stats.SimilarityThreshold != 0.95 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestHandleCacheClear(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	s := newTestServerWith(fe)

	req := httptest.NewRequest(http.MethodDelete, "/api/cache/clear", nil)
	w := httptest.NewRecorder()

	s.handleCacheClear(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !fe.cleared {
		t.Error("engine CacheClear not called")
	}
}

func TestHandleCacheClear_Error(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeEngine{clearErr: fmt.Errorf("index unavailable")})
	req := httptest.NewRequest(http.MethodDelete, "/api/cache/clear", nil)
	w := httptest.NewRecorder()

	s.handleCacheClear(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/history
// ---------------------------------------------------------------------------

// fakeQueryLog implements store.QueryLog in memory for handler tests.
type fakeQueryLog struct {
	asks    []store.AskRecord
	ingests []store.IngestRecord
	err     error
}

func (f *fakeQueryLog) LogAsk(_ context.Context, rec store.AskRecord) error {
	if f.err != nil {
		return f.err
	}
	f.asks = append(f.asks, rec)
	return nil
}

func (f *fakeQueryLog) LogIngest(_ context.Context, rec store.IngestRecord) error {
	if f.err != nil {
		return f.err
	}
	f.ingests = append(f.ingests, rec)
	return nil
}

func (f *fakeQueryLog) RecentAsks(_ context.Context, n int) ([]store.AskRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.asks) {
		n = len(f.asks)
	}
	return f.asks[:n], nil
}

func (f *fakeQueryLog) Close() error { return nil }

func TestHandleHistory_NoLogConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"asks":[]`) {
		t.Errorf("expected empty asks array, got: %s", w.Body.String())
	}
}

func TestHandleHistory_ReturnsLoggedAsks(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.queryLog = &fakeQueryLog{asks: []store.AskRecord{
		{Query: "what is dna", Mode: "explain", Cached: true, Similarity: 0.97},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Asks) != 1 || resp.Asks[0].Query != "what is dna" || !resp.Asks[0].Cached {
		t.Errorf("history: %+v", resp.Asks)
	}
}

func TestAskIsRecordedInQueryLog(t *testing.T) {
	t.Parallel()

	ql := &fakeQueryLog{}
	s := newTestServer()
	s.queryLog = ql

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"what is dna","mode":"quiz"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(ql.asks) != 1 {
		t.Fatalf("expected 1 logged ask, got %d", len(ql.asks))
	}
	if ql.asks[0].Query != "what is dna" {
		t.Errorf("logged query: got %q", ql.asks[0].Query)
	}
}
