package vectorindex

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// newTestIndex returns an empty 3-dimensional MemoryIndex.
func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	return NewMemoryIndex(3)
}

func TestMemoryIndex_RoundTrip(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	v := []float32{0.1, 0.2, 0.3}
	err := ix.Upsert(ctx, "docs", []Vector{
		{ID: "x", Values: v, Metadata: map[string]string{"text": "hello"}},
		{ID: "y", Values: []float32{0.9, -0.1, 0.0}, Metadata: map[string]string{"text": "other"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := ix.Query(ctx, "docs", v, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if results[0].ID != "x" {
		t.Errorf("top result: want x, got %s", results[0].ID)
	}
	if math.Abs(float64(results[0].Score)-1.0) > 1e-6 {
		t.Errorf("identical vector score: want 1.0, got %f", results[0].Score)
	}
	if results[0].Text != "hello" {
		t.Errorf("text: want %q, got %q", "hello", results[0].Text)
	}
}

func TestMemoryIndex_DimensionMismatchRejectsWholeBatch(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	err := ix.Upsert(ctx, "docs", []Vector{
		{ID: "good", Values: []float32{1, 0, 0}},
		{ID: "bad", Values: []float32{1, 0}},
	})
	if err == nil {
		t.Fatal("want dimension error, got nil")
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("want *DimensionError, got %T: %v", err, err)
	}
	if dimErr.ID != "bad" || dimErr.Got != 2 || dimErr.Want != 3 {
		t.Errorf("unexpected error detail: %+v", dimErr)
	}

	// No partial application: even the valid vector must be absent.
	stats, err := ix.Stats(ctx, "docs")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("index changed by failed batch: count = %d", stats.Count)
	}
}

func TestMemoryIndex_NamespaceIsolation(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	v := []float32{1, 0, 0}
	if err := ix.Upsert(ctx, "a", []Vector{{ID: "shared", Values: v}}); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := ix.Upsert(ctx, "b", []Vector{{ID: "shared", Values: v}}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	results, err := ix.Query(ctx, "a", v, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("namespace a: want 1 result, got %d", len(results))
	}

	results, err = ix.Query(ctx, "c", v, 10, nil)
	if err != nil {
		t.Fatalf("query empty namespace: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty namespace: want 0 results, got %d", len(results))
	}
}

func TestMemoryIndex_UpsertOverwritesSameID(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "docs", []Vector{{ID: "x", Values: []float32{1, 0, 0}, Metadata: map[string]string{"text": "v1"}}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := ix.Upsert(ctx, "docs", []Vector{{ID: "x", Values: []float32{1, 0, 0}, Metadata: map[string]string{"text": "v2"}}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	stats, err := ix.Stats(ctx, "docs")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 {
		t.Fatalf("want 1 vector after overwrite, got %d", stats.Count)
	}

	results, err := ix.Query(ctx, "docs", []float32{1, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].Text != "v2" {
		t.Errorf("overwrite: want v2, got %q", results[0].Text)
	}
}

func TestMemoryIndex_EqualityFilter(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	err := ix.Upsert(ctx, "docs", []Vector{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: map[string]string{"source": "x.pdf"}},
		{ID: "b", Values: []float32{1, 0, 0}, Metadata: map[string]string{"source": "y.pdf"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := ix.Query(ctx, "docs", []float32{1, 0, 0}, 10, &Filter{Equals: map[string]string{"source": "x.pdf"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("filter: want only a, got %v", results)
	}
}

func TestMemoryIndex_TimestampRangeFilter(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	err := ix.Upsert(ctx, "docs", []Vector{
		{ID: "old", Values: []float32{1, 0, 0}, Metadata: map[string]string{"timestamp": old}},
		{ID: "new", Values: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := ix.Query(ctx, "docs", []float32{1, 0, 0}, 10, &Filter{
		TimestampFrom: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "new" {
		t.Errorf("timestamp filter: want only new, got %v", results)
	}
}

func TestMemoryIndex_DeleteUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "docs", []Vector{{ID: "x", Values: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Delete(ctx, "docs", []string{"missing", "x"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	stats, err := ix.Stats(ctx, "docs")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("want empty namespace after delete, got %d", stats.Count)
	}
}

func TestMemoryIndex_OrderingDescendingByScore(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	err := ix.Upsert(ctx, "docs", []Vector{
		{ID: "far", Values: []float32{0, 1, 0}},
		{ID: "near", Values: []float32{0.9, 0.1, 0}},
		{ID: "exact", Values: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := ix.Query(ctx, "docs", []float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"exact", "near", "far"}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("result[%d]: want %s, got %s", i, id, results[i].ID)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestMemoryIndex_ClearEmptiesNamespace(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "cache", []Vector{{ID: "x", Values: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Clear(ctx, "cache"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	results, err := ix.Query(ctx, "cache", []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("want empty namespace after clear, got %d results", len(results))
	}
}

func TestMemoryIndex_TimestampStampedWhenAbsent(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "docs", []Vector{{ID: "x", Values: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	results, err := ix.Query(ctx, "docs", []float32{1, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ts := results[0].Metadata["timestamp"]
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("stamped timestamp %q is not RFC3339: %v", ts, err)
	}
}
