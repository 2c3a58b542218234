package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryIndex is a brute-force cosine-similarity Index kept entirely in
// process memory. It upholds the same dimension, namespace-isolation, and
// ordering contracts as the Qdrant backend and is used in tests and as the
// zero-dependency dev backend (VECTOR_BACKEND=memory).
type MemoryIndex struct {
	// mu guards namespaces.
	mu sync.RWMutex

	// dimension is the embedding size enforced on upsert.
	dimension int

	// namespaces maps a namespace name to its records in insertion order.
	namespaces map[string][]memoryRecord
}

// memoryRecord is one stored vector plus its metadata.
type memoryRecord struct {
	id       string
	values   []float32
	metadata map[string]string
}

// NewMemoryIndex constructs an empty MemoryIndex with the given dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension:  dimension,
		namespaces: make(map[string][]memoryRecord),
	}
}

// Upsert stores or overwrites vectors in the namespace. The whole batch is
// validated against the index dimension before anything is written.
func (m *MemoryIndex) Upsert(_ context.Context, namespace string, vectors []Vector) error {
	if err := validateDimensions(vectors, m.dimension); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	namespace = normalizeNamespace(namespace)
	stamped := stampTimestamps(vectors, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.namespaces[namespace]
	for _, v := range stamped {
		rec := memoryRecord{id: v.ID, values: append([]float32(nil), v.Values...), metadata: v.Metadata}
		replaced := false
		for i := range records {
			if records[i].id == v.ID {
				records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			records = append(records, rec)
		}
	}
	m.namespaces[namespace] = records
	return nil
}

// Query scans the namespace and returns up to topK results by descending
// cosine similarity. Ties keep insertion order. An empty namespace returns
// an empty result.
func (m *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	namespace = normalizeNamespace(namespace)

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.namespaces[namespace]
	if len(records) == 0 || topK <= 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float32
		rec   memoryRecord
	}
	var matches []scored
	for pos, rec := range records {
		if !matchesFilter(rec.metadata, filter) {
			continue
		}
		matches = append(matches, scored{pos: pos, score: cosine(vector, rec.values), rec: rec})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].pos < matches[j].pos
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}

	out := make([]SearchResult, 0, len(matches))
	for _, s := range matches {
		res := SearchResult{ID: s.rec.id, Score: s.score, Metadata: make(map[string]string)}
		for k, v := range s.rec.metadata {
			if k == textKey {
				res.Text = v
				continue
			}
			res.Metadata[k] = v
		}
		out = append(out, res)
	}
	return out, nil
}

// Delete removes vectors by id. Unknown ids are a no-op.
func (m *MemoryIndex) Delete(_ context.Context, namespace string, ids []string) error {
	namespace = normalizeNamespace(namespace)
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.namespaces[namespace]
	kept := records[:0]
	for _, rec := range records {
		if !drop[rec.id] {
			kept = append(kept, rec)
		}
	}
	m.namespaces[namespace] = kept
	return nil
}

// Stats reports the vector count of the namespace, the index dimension, and
// the full namespace list.
func (m *MemoryIndex) Stats(_ context.Context, namespace string) (*Stats, error) {
	namespace = normalizeNamespace(namespace)

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		Count:     uint64(len(m.namespaces[namespace])),
		Dimension: m.dimension,
	}
	for ns := range m.namespaces {
		stats.Namespaces = append(stats.Namespaces, ns)
	}
	sort.Strings(stats.Namespaces)
	return stats, nil
}

// Clear removes every vector in the namespace.
func (m *MemoryIndex) Clear(_ context.Context, namespace string) error {
	namespace = normalizeNamespace(namespace)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[namespace] = nil
	return nil
}

// Dimension returns the embedding size the index was created with.
func (m *MemoryIndex) Dimension() int { return m.dimension }

// Close is a no-op for the in-memory backend.
func (m *MemoryIndex) Close() error { return nil }

// matchesFilter evaluates a Filter against a record's metadata.
func matchesFilter(metadata map[string]string, f *Filter) bool {
	if f == nil {
		return true
	}
	for k, want := range f.Equals {
		if metadata[k] != want {
			return false
		}
	}
	if !f.TimestampFrom.IsZero() || !f.TimestampTo.IsZero() {
		ts, err := time.Parse(time.RFC3339, metadata[timestampKey])
		if err != nil {
			return false
		}
		if !f.TimestampFrom.IsZero() && ts.Before(f.TimestampFrom) {
			return false
		}
		if !f.TimestampTo.IsZero() && ts.After(f.TimestampTo) {
			return false
		}
	}
	return true
}

// cosine computes the cosine similarity of two vectors.
// Returns 0 when either vector has zero magnitude.
func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
