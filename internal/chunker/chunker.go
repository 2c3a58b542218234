// Package chunker splits raw document text into ordered chunks on literal
// boundary markers (e.g. "Chapter", "Section"). Chunks are the unit of
// indexing and retrieval; the split is pure and order-preserving.
package chunker

import "strings"

// Chunk is one contiguous, order-tagged slice of a document's text.
type Chunk struct {
	// Index is the 0-based position of the chunk within its document.
	Index int

	// Text is the chunk content, re-prefixed with the boundary delimiter so
	// boundary context is preserved in the indexed text.
	Text string
}

// Boundary delimiters commonly used for educational material.
const (
	BoundaryChapter   = "Chapter"
	BoundarySection   = "Section"
	BoundaryParagraph = "\n\n"
)

// ByBoundary splits text on every literal occurrence of delimiter. Each
// segment that is non-empty after trimming becomes one chunk, re-prefixed
// with the delimiter that introduced it so boundary context is preserved;
// the leading segment (before any delimiter) is kept unprefixed. Whitespace-
// only segments are dropped and do not consume an index. If the delimiter
// never occurs, the entire text is one chunk with index 0. Concatenating
// the chunks reproduces all non-delimiter content in the original order.
func ByBoundary(text, delimiter string) []Chunk {
	if delimiter == "" {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Chunk{{Index: 0, Text: trimmed}}
	}

	segments := strings.Split(text, delimiter)
	chunks := make([]Chunk, 0, len(segments))
	for i, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		chunkText := strings.TrimRight(seg, " \t\r\n")
		if i == 0 {
			chunkText = strings.TrimLeft(chunkText, " \t\r\n")
		} else {
			chunkText = delimiter + chunkText
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  chunkText,
		})
	}
	return chunks
}

// Texts returns the chunk texts in order. Convenience for embedding batches.
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
