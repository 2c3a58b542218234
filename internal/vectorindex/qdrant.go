package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// textKey is the payload field holding the record text.
const textKey = "text"

// idKey is the payload field holding the caller-supplied record id.
// Qdrant point ids must be UUIDs, so the original id travels in the payload
// and the point id is derived from it (see pointID).
const idKey = "id"

// namespaceSeparator joins the index name and namespace into a collection name.
const namespaceSeparator = "__"

// pointIDSpace is the UUID namespace for deriving Qdrant point ids from
// caller-supplied record ids. Deriving ids deterministically makes re-upserting
// the same record an overwrite rather than a duplicate.
var pointIDSpace = uuid.MustParse("4d1f59a2-8c1e-4e43-9a30-27c1d0d97b11")

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CreateTimeout bounds how long CreateIndex waits for a new index to
	// become ready (default: 30s).
	CreateTimeout time.Duration
}

// QdrantClient owns the connection to a Qdrant instance and the lifecycle of
// the indexes stored in it. Safe for concurrent use.
type QdrantClient struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this client.
	cfg *QdrantConfig
}

// NewQdrantClient connects to Qdrant with the given config.
func NewQdrantClient(cfg *QdrantConfig) (*QdrantClient, error) {
	if cfg == nil {
		cfg = &QdrantConfig{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 30 * time.Second
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: failed to create qdrant client: %w", err)
	}

	return &QdrantClient{client: client, cfg: cfg}, nil
}

// CreateIndex creates a new index with the given name and dimension (cosine
// metric) and waits until it is ready, bounded by cfg.CreateTimeout and the
// caller's context. Returns ErrAlreadyExists if the index exists (the handle
// is still returned and usable), ErrUnavailable on connectivity failure, and
// ErrTimeout if readiness is not reached in time.
func (c *QdrantClient) CreateIndex(ctx context.Context, name string, dimension int) (*QdrantIndex, error) {
	collection := collectionName(name, DefaultNamespace)

	exists, err := c.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %q: %v", ErrUnavailable, name, err)
	}
	ix := &QdrantIndex{client: c.client, name: name, dimension: dimension}
	if exists {
		return ix, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}

	if err := createCollection(ctx, c.client, collection, dimension); err != nil {
		return nil, fmt.Errorf("%w: creating %q: %v", ErrUnavailable, name, err)
	}

	if err := c.waitReady(ctx, collection); err != nil {
		return nil, err
	}
	return ix, nil
}

// Connect returns a handle to an existing index. Fails with ErrNotFound if
// the index is absent. Connecting to a ready index is an idempotent no-op.
func (c *QdrantClient) Connect(ctx context.Context, name string, dimension int) (*QdrantIndex, error) {
	collection := collectionName(name, DefaultNamespace)

	exists, err := c.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %q: %v", ErrUnavailable, name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return &QdrantIndex{client: c.client, name: name, dimension: dimension}, nil
}

// Ensure connects to the index if it exists and creates it otherwise.
// ErrAlreadyExists from a concurrent create is swallowed: readiness is all
// the caller asked for.
func (c *QdrantClient) Ensure(ctx context.Context, name string, dimension int) (*QdrantIndex, error) {
	ix, err := c.Connect(ctx, name, dimension)
	if err == nil {
		return ix, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	ix, err = c.CreateIndex(ctx, name, dimension)
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return nil, err
	}
	return ix, nil
}

// DeleteIndex drops the index and every namespace in it.
func (c *QdrantClient) DeleteIndex(ctx context.Context, name string) error {
	collections, err := c.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing collections: %v", ErrUnavailable, err)
	}
	prefix := name + namespaceSeparator
	for _, coll := range collections {
		if !strings.HasPrefix(coll, prefix) {
			continue
		}
		if err := c.client.DeleteCollection(ctx, coll); err != nil {
			return fmt.Errorf("vectorindex: deleting collection %q: %w", coll, err)
		}
	}
	return nil
}

// HealthCheck probes the Qdrant instance. Used by readiness endpoints.
func (c *QdrantClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vectorindex: qdrant health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (c *QdrantClient) Close() error {
	return c.client.Close()
}

// waitReady polls until the collection exists, with exponential backoff
// bounded by cfg.CreateTimeout. Qdrant finishes (or fails) collection creation
// server-side regardless of client cancellation.
func (c *QdrantClient) waitReady(ctx context.Context, collection string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.cfg.CreateTimeout

	op := func() error {
		exists, err := c.client.CollectionExists(ctx, collection)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("collection %q not ready", collection)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrTimeout, collection, err)
	}
	return nil
}

// QdrantIndex implements Index backed by Qdrant. Each namespace is stored in
// its own collection named <index>__<namespace>, so ids never collide across
// namespaces and clearing a namespace is a collection drop.
type QdrantIndex struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client

	// name is the index name used as the collection name prefix.
	name string

	// dimension is the embedding size enforced on upsert.
	dimension int
}

// Upsert stores or overwrites vectors in the namespace, creating the
// namespace collection on first use. The whole batch is validated against the
// index dimension before anything is written.
func (ix *QdrantIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if err := validateDimensions(vectors, ix.dimension); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	collection := collectionName(ix.name, namespace)
	if err := ix.ensureNamespace(ctx, collection); err != nil {
		return err
	}

	stamped := stampTimestamps(vectors, time.Now())
	points := make([]*qdrant.PointStruct, 0, len(stamped))
	for _, v := range stamped {
		payload := map[string]interface{}{idKey: v.ID}
		for k, val := range v.Metadata {
			payload[k] = val
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(v.ID)),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	// Wait for the write to be applied so an immediate query sees it.
	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert into %s/%s failed: %w", ix.name, normalizeNamespace(namespace), err)
	}
	return nil
}

// Query performs a cosine similarity search in the namespace. An absent
// namespace returns an empty result.
func (ix *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	collection := collectionName(ix.name, namespace)

	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %q: %v", ErrUnavailable, collection, err)
	}
	if !exists {
		return nil, nil
	}

	limit := uint64(topK)
	results, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         qdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query %s/%s failed: %w", ix.name, normalizeNamespace(namespace), err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		res := SearchResult{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		for k, v := range r.Payload {
			switch k {
			case idKey:
				res.ID = v.GetStringValue()
			case textKey:
				res.Text = v.GetStringValue()
			default:
				res.Metadata[k] = v.GetStringValue()
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// Delete removes vectors by id. Unknown ids and absent namespaces are no-ops.
func (ix *QdrantIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	collection := collectionName(ix.name, namespace)

	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: checking %q: %v", ErrUnavailable, collection, err)
	}
	if !exists || len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(id)))
	}
	_, err = ix.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete from %s/%s failed: %w", ix.name, normalizeNamespace(namespace), err)
	}
	return nil
}

// Stats returns the vector count of the namespace, the index dimension, and
// the list of namespaces present in the index.
func (ix *QdrantIndex) Stats(ctx context.Context, namespace string) (*Stats, error) {
	collection := collectionName(ix.name, namespace)

	stats := &Stats{Dimension: ix.dimension}

	collections, err := ix.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", ErrUnavailable, err)
	}
	prefix := ix.name + namespaceSeparator
	for _, coll := range collections {
		if strings.HasPrefix(coll, prefix) {
			stats.Namespaces = append(stats.Namespaces, strings.TrimPrefix(coll, prefix))
		}
	}

	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %q: %v", ErrUnavailable, collection, err)
	}
	if exists {
		count, err := ix.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorindex: counting %s/%s: %w", ix.name, normalizeNamespace(namespace), err)
		}
		stats.Count = count
	}
	return stats, nil
}

// Clear drops and recreates the namespace collection, removing every vector.
func (ix *QdrantIndex) Clear(ctx context.Context, namespace string) error {
	collection := collectionName(ix.name, namespace)

	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: checking %q: %v", ErrUnavailable, collection, err)
	}
	if exists {
		if err := ix.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("vectorindex: clearing %s/%s: %w", ix.name, normalizeNamespace(namespace), err)
		}
	}
	if err := createCollection(ctx, ix.client, collection, ix.dimension); err != nil {
		return fmt.Errorf("vectorindex: recreating %s/%s: %w", ix.name, normalizeNamespace(namespace), err)
	}
	return nil
}

// Dimension returns the embedding size the index was created with.
func (ix *QdrantIndex) Dimension() int { return ix.dimension }

// Close is a no-op; the gRPC connection is owned by the QdrantClient.
func (ix *QdrantIndex) Close() error { return nil }

// ensureNamespace creates the namespace collection if it does not exist yet.
func (ix *QdrantIndex) ensureNamespace(ctx context.Context, collection string) error {
	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: checking %q: %v", ErrUnavailable, collection, err)
	}
	if exists {
		return nil
	}
	if err := createCollection(ctx, ix.client, collection, ix.dimension); err != nil {
		return fmt.Errorf("%w: creating %q: %v", ErrUnavailable, collection, err)
	}
	return nil
}

// createCollection creates a cosine-metric collection with the given dimension.
func createCollection(ctx context.Context, client *qdrant.Client, collection string, dimension int) error {
	return client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// collectionName joins the index name and namespace into a collection name.
func collectionName(index, namespace string) string {
	return index + namespaceSeparator + normalizeNamespace(namespace)
}

// pointID derives a deterministic UUID point id from a record id, so that
// re-upserting the same id overwrites instead of duplicating. Ids that are
// already UUIDs are used as-is.
func pointID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewMD5(pointIDSpace, []byte(id)).String()
}

// qdrantFilter translates a Filter into a Qdrant must-clause filter.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	for k, v := range f.Equals {
		must = append(must, qdrant.NewMatch(k, v))
	}
	if !f.TimestampFrom.IsZero() || !f.TimestampTo.IsZero() {
		dr := &qdrant.DatetimeRange{}
		if !f.TimestampFrom.IsZero() {
			dr.Gte = timestamppb.New(f.TimestampFrom)
		}
		if !f.TimestampTo.IsZero() {
			dr.Lte = timestamppb.New(f.TimestampTo)
		}
		must = append(must, qdrant.NewDatetimeRange(timestampKey, dr))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
