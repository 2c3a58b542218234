// Package ingestion implements the document ingestion pipeline. It extracts
// text from a file, chunks it on a boundary delimiter, embeds each chunk,
// and upserts the results into the vector index. This pipeline is invoked
// by the `pedaragy ingest` CLI command and the POST /api/ingest endpoint.
package ingestion

import (
	"context"
	"fmt"

	"github.com/pedaragy/pedaragy-go/internal/chunker"
	"github.com/pedaragy/pedaragy-go/internal/embedder"
	"github.com/pedaragy/pedaragy-go/internal/extract"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Boundary is the literal delimiter chunks are split on.
	// Defaults to "Chapter" if empty.
	Boundary string

	// Namespace is the index namespace documents are written to.
	// Defaults to the index default namespace if empty.
	Namespace string
}

// Result reports what one ingestion run produced.
type Result struct {
	// DocumentID is the id prefix shared by all chunks of the document.
	DocumentID string `json:"document_id"`

	// Source is the source label stamped on each chunk (usually the file name).
	Source string `json:"source"`

	// ChunksIndexed is the number of chunks upserted into the index.
	ChunksIndexed int `json:"chunks_indexed"`
}

// Pipeline orchestrates the extract → chunk → embed → upsert flow.
type Pipeline struct {
	embedder  embedder.Embedder
	index     vectorindex.Index
	extractor *extract.Extractor
	cfg       *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb embedder.Embedder, index vectorindex.Index, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Boundary == "" {
		cfg.Boundary = chunker.BoundaryChapter
	}
	if cfg.Namespace == "" {
		cfg.Namespace = vectorindex.DefaultNamespace
	}
	return &Pipeline{
		embedder:  emb,
		index:     index,
		extractor: extract.NewExtractor(),
		cfg:       cfg,
	}, nil
}

// IngestFile extracts the file at path and indexes its chunks. The file
// name becomes the document id and source label. Progress is reported via
// the optional progress callback.
func (p *Pipeline) IngestFile(ctx context.Context, path string, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}

	progress(fmt.Sprintf("extracting %s", path))
	doc, err := p.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	docID := doc.Metadata[extract.MetaFileName]
	progress(fmt.Sprintf("indexing %s (%s words)", docID, doc.Metadata[extract.MetaWordCount]))
	res, err := p.IngestText(ctx, docID, doc.Text, doc.Metadata)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("ingested %d chunks from %s", res.ChunksIndexed, docID))
	return res, nil
}

// IngestText chunks and indexes raw text under the given document id.
// Chunk ids are "<documentID>_<chunkIndex>", so re-ingesting the same
// document overwrites its chunks instead of duplicating them. The provided
// metadata is stamped on every chunk alongside the chunk-level fields.
func (p *Pipeline) IngestText(ctx context.Context, documentID, text string, metadata map[string]string) (*Result, error) {
	if documentID == "" {
		return nil, fmt.Errorf("ingestion: document id must not be empty")
	}

	chunks := chunker.ByBoundary(text, p.cfg.Boundary)
	if len(chunks) == 0 {
		return &Result{DocumentID: documentID, Source: sourceLabel(metadata, documentID)}, nil
	}

	embeddings, err := p.embedder.Embed(ctx, chunker.Texts(chunks))
	if err != nil {
		return nil, fmt.Errorf("ingestion: embed %d chunks of %s: %w", len(chunks), documentID, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("ingestion: %s: expected %d embeddings, got %d", documentID, len(chunks), len(embeddings))
	}

	source := sourceLabel(metadata, documentID)
	method := boundaryMethod(p.cfg.Boundary)
	vectors := make([]vectorindex.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = vectorindex.Vector{
			ID:       fmt.Sprintf("%s_%d", documentID, c.Index),
			Values:   embeddings[i],
			Metadata: chunkMetadata(metadata, c, source, method),
		}
	}

	if err := p.index.Upsert(ctx, p.cfg.Namespace, vectors); err != nil {
		return nil, fmt.Errorf("ingestion: upsert %s: %w", documentID, err)
	}

	return &Result{
		DocumentID:    documentID,
		Source:        source,
		ChunksIndexed: len(vectors),
	}, nil
}

// boundaryMethod names the chunking strategy for metadata.
func boundaryMethod(boundary string) string {
	switch boundary {
	case chunker.BoundaryChapter:
		return "chapter"
	case chunker.BoundarySection:
		return "section"
	case chunker.BoundaryParagraph:
		return "paragraph"
	default:
		return "custom"
	}
}
