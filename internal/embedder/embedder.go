// Package embedder converts text into dense vector embeddings. Each
// implementation talks to a different backend (Ollama, OpenAI, Azure OpenAI)
// via plain HTTP. Embeddings are the coordinate system for both document
// retrieval and the semantic cache, so every component that writes to or
// queries a vector index goes through this package.
package embedder

import (
	"context"
	"fmt"
)

// Embedder converts a batch of texts into embeddings. The returned slice is
// parallel to the input slice. Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// One embeds a single text. Convenience wrapper for query-time callers that
// only ever embed one string at a time.
func One(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder: expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}
