package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pedaragy/pedaragy-go/internal/cache"
	"github.com/pedaragy/pedaragy-go/internal/embedder"
	"github.com/pedaragy/pedaragy-go/internal/engine"
	"github.com/pedaragy/pedaragy-go/internal/ingestion"
	"github.com/pedaragy/pedaragy-go/internal/provider"
	"github.com/pedaragy/pedaragy-go/internal/retrieval"
	"github.com/pedaragy/pedaragy-go/internal/server"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// engineStack holds the wired engine and the resources that must be
// released when the command finishes.
type engineStack struct {
	// Engine is the fully wired query engine.
	Engine *engine.Engine
	// Qdrant is the Qdrant client, nil when VECTOR_BACKEND=memory.
	Qdrant *vectorindex.QdrantClient
	// Close releases all held connections.
	Close func()
}

// buildEngine wires the embedder, vector indexes, retrieval engine, semantic
// cache, ingestion pipeline, and generator from the environment. The vector
// backend defaults to Qdrant; VECTOR_BACKEND=memory selects the in-process
// index for local experiments and tests.
func buildEngine(ctx context.Context, log *slog.Logger) (*engineStack, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := embedder.ResolveBackend()
	dims := embedder.DefaultDimensions(embBackend)
	log.Info("embedder initialised",
		slog.String("backend", embBackend),
		slog.Int("dimensions", dims),
	)

	var (
		docs    vectorindex.Index
		answers vectorindex.Index
		client  *vectorindex.QdrantClient
	)

	if getEnvOrDefault("VECTOR_BACKEND", "qdrant") == "memory" {
		docs = vectorindex.NewMemoryIndex(dims)
		answers = vectorindex.NewMemoryIndex(dims)
		log.Info("vector backend: in-memory (volatile)")
	} else {
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)

		client, err = vectorindex.NewQdrantClient(&vectorindex.QdrantConfig{
			Host:   host,
			Port:   port,
			APIKey: os.Getenv("QDRANT_API_KEY"),
			UseTLS: os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}

		docsCollection := getEnvOrDefault("QDRANT_COLLECTION", "pedaragy-docs")
		cacheCollection := getEnvOrDefault("QDRANT_CACHE_COLLECTION", "pedaragy-cache")

		docs, err = client.Ensure(ctx, docsCollection, dims)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to open index %s: %w", docsCollection, err)
		}
		answers, err = client.Ensure(ctx, cacheCollection, dims)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to open index %s: %w", cacheCollection, err)
		}
		log.Info("qdrant indexes ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("docs", docsCollection),
			slog.String("cache", cacheCollection),
		)
	}

	threshold := getEnvFloat32("CACHE_SIMILARITY_THRESHOLD", cache.DefaultThreshold)
	retriever := retrieval.NewEngine(emb, docs, "")
	answerCache := cache.New(emb, answers, "", threshold)

	pipeline, err := ingestion.NewPipeline(emb, docs, &ingestion.Config{
		Boundary: os.Getenv("CHUNK_BOUNDARY"),
	})
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}

	gen := engine.NewModelGenerator(provider.ConfigFromEnv())

	eng, err := engine.New(retriever, answerCache, pipeline, gen, &engine.Config{
		TopK:     getEnvInt("RETRIEVAL_TOP_K", 0),
		MinScore: getEnvFloat32("RETRIEVAL_MIN_SCORE", 0),
	})
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}

	closeFn := func() {
		if client != nil {
			_ = client.Close()
		}
	}
	return &engineStack{Engine: eng, Qdrant: client, Close: closeFn}, nil
}

// buildPingers assembles the readiness probes for the configured backends.
func buildPingers(stack *engineStack) []server.Pinger {
	var pingers []server.Pinger

	if stack.Qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(stack.Qdrant))
	}

	switch embedder.ResolveBackend() {
	case "ollama":
		host := getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		pingers = append(pingers, server.NewOllamaPinger(host))
	case "openai":
		pingers = append(pingers, server.NewHTTPPinger("openai", "https://api.openai.com/v1/models"))
	case "azure":
		if endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
			pingers = append(pingers, server.NewHTTPPinger("azure-openai", endpoint))
		}
	}

	return pingers
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat32 returns the env var parsed as float32, or fallback when
// unset or unparsable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
