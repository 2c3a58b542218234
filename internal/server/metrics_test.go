package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServerWith(&fakeEngine{})
	s.cfg.MetricsRegistry = reg
	s.cfg.MetricsGatherer = reg
	s.metrics = newServerMetrics(reg)
	return s, reg
}

// counterValue finds a counter by name and label, returning -1 if absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_AskOutcomeAndCacheResult(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	// One cached ask through the real handler.
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"query":"what is dna"}`))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ask: got %d", w.Code)
	}

	if v := counterValue(t, reg, "pedaragy_ask_requests_total", "outcome", "ok"); v != 1 {
		t.Errorf("ask_requests_total{outcome=ok}: want 1, got %v", v)
	}
	// The default fake result is uncached.
	if v := counterValue(t, reg, "pedaragy_cache_lookups_total", "result", "miss"); v != 1 {
		t.Errorf("cache_lookups_total{result=miss}: want 1, got %v", v)
	}
}

func Test_Metrics_IngestCounters(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"document_id":"bio.txt","text":"Chapter 1 Cells"}`))
	w := httptest.NewRecorder()
	s.handleIngest(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest: got %d", w.Code)
	}

	if v := counterValue(t, reg, "pedaragy_ingest_documents_total", "", ""); v != 1 {
		t.Errorf("ingest_documents_total: want 1, got %v", v)
	}
	// The fake engine reports 2 chunks for text ingests.
	if v := counterValue(t, reg, "pedaragy_ingest_chunks_total", "", ""); v != 2 {
		t.Errorf("ingest_chunks_total: want 2, got %v", v)
	}
}

func Test_Metrics_InstrumentRecordsHTTPRequests(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.instrument("health", http.HandlerFunc(s.handleHealth))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if v := counterValue(t, reg, "pedaragy_http_requests_total", "handler", "health"); v != 1 {
		t.Errorf("http_requests_total{handler=health}: want 1, got %v", v)
	}
}
