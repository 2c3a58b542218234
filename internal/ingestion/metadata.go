package ingestion

import (
	"strconv"

	"github.com/pedaragy/pedaragy-go/internal/chunker"
	"github.com/pedaragy/pedaragy-go/internal/extract"
)

// Metadata keys stamped on every indexed chunk.
const (
	metaChunkIndex  = "chunk_index"
	metaChunkMethod = "chunk_method"
	metaSource      = "source"
	metaText        = "text"
)

// sourceLabel resolves the source field for a document: the extracted file
// name when present, otherwise the document id.
func sourceLabel(metadata map[string]string, documentID string) string {
	if name := metadata[extract.MetaFileName]; name != "" {
		return name
	}
	return documentID
}

// chunkMetadata builds the metadata map for one chunk: the document-level
// metadata plus the chunk-level fields and the chunk text itself. The input
// map is copied, never mutated; chunks of one document must not share a map.
func chunkMetadata(base map[string]string, c chunker.Chunk, source, method string) map[string]string {
	meta := make(map[string]string, len(base)+4)
	for k, v := range base {
		meta[k] = v
	}
	meta[metaChunkIndex] = strconv.Itoa(c.Index)
	meta[metaChunkMethod] = method
	meta[metaSource] = source
	meta[metaText] = c.Text
	return meta
}
