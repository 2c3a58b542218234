// Package vectorindex defines the vector index abstraction used by the
// retrieval engine and the semantic cache: namespaced CRUD plus
// nearest-neighbour search over (id, vector, metadata) records.
// Concrete implementations (Qdrant, in-memory) satisfy these interfaces so
// callers never depend on a specific backend.
package vectorindex

import (
	"context"
	"time"
)

// DefaultNamespace is the namespace used when callers pass an empty string.
const DefaultNamespace = "default"

// timestampKey is the metadata field stamped on upsert when absent.
const timestampKey = "timestamp"

// Vector is a single record stored in a namespace of an index.
type Vector struct {
	// ID is the record identifier, unique within its namespace.
	ID string

	// Values is the embedding. Its length must equal the index dimension.
	Values []float32

	// Metadata holds string-keyed scalar values attached to the record.
	// A "timestamp" field (RFC3339) is stamped on upsert if absent.
	Metadata map[string]string
}

// SearchResult is one match returned by a nearest-neighbour query.
type SearchResult struct {
	// ID is the matched record's identifier.
	ID string

	// Score is the cosine similarity to the query vector (higher = closer;
	// 1.0 for an identical vector).
	Score float32

	// Text is the stored text of the record, pulled out of metadata.
	Text string

	// Metadata holds the remaining metadata fields of the record.
	Metadata map[string]string
}

// Filter is a metadata predicate evaluated inside the index during a query.
type Filter struct {
	// Equals lists exact-match conditions over metadata fields
	// (e.g. source == "notes.pdf").
	Equals map[string]string

	// TimestampFrom, when non-zero, requires the stamped "timestamp" field
	// to be at or after this instant.
	TimestampFrom time.Time

	// TimestampTo, when non-zero, requires the stamped "timestamp" field
	// to be at or before this instant.
	TimestampTo time.Time
}

// Stats describes the current contents of an index.
type Stats struct {
	// Count is the number of vectors in the queried namespace.
	Count uint64

	// Dimension is the embedding size the index was created with.
	Dimension int

	// Namespaces lists all namespaces present in the index.
	Namespaces []string
}

// Index is the interface for one named vector index with namespaced storage.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Upsert stores or overwrites a batch of vectors in a namespace.
	// If any vector's length differs from the index dimension the whole
	// batch fails with a *DimensionError and nothing is written.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// Query returns up to topK results for the given vector, ordered by
	// descending score. An empty or absent namespace yields an empty
	// result, never an error. filter may be nil.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter *Filter) ([]SearchResult, error)

	// Delete removes vectors by id. Unknown ids are a no-op.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Stats reports the vector count of the namespace along with the index
	// dimension and the full namespace list.
	Stats(ctx context.Context, namespace string) (*Stats, error)

	// Clear destroys and recreates a namespace, removing every vector in it.
	Clear(ctx context.Context, namespace string) error

	// Dimension returns the embedding size the index was created with.
	Dimension() int

	// Close releases any resources held by the index handle.
	Close() error
}

// normalizeNamespace maps the empty string to DefaultNamespace.
func normalizeNamespace(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}

// stampTimestamps fills the "timestamp" metadata field with now (RFC3339)
// for every vector that does not already carry one. The input slice is
// returned with copied metadata maps so callers' maps are never mutated.
func stampTimestamps(vectors []Vector, now time.Time) []Vector {
	stamped := make([]Vector, len(vectors))
	for i, v := range vectors {
		md := make(map[string]string, len(v.Metadata)+1)
		for k, val := range v.Metadata {
			md[k] = val
		}
		if _, ok := md[timestampKey]; !ok {
			md[timestampKey] = now.UTC().Format(time.RFC3339)
		}
		v.Metadata = md
		stamped[i] = v
	}
	return stamped
}
