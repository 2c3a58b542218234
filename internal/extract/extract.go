// Package extract pulls plain text and file metadata out of document files
// for ingestion. Plain text, Markdown, PDF, and DOCX are supported; unknown
// extensions are treated as plain text.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Metadata keys stamped on every extracted document.
const (
	MetaFileName            = "file_name"
	MetaFileSize            = "file_size"
	MetaFileHash            = "file_hash"
	MetaWordCount           = "word_count"
	MetaPageCount           = "page_count"
	MetaTitle               = "title"
	MetaAuthor              = "author"
	MetaExtractionTimestamp = "extraction_timestamp"
)

// Document is the result of extracting one file.
type Document struct {
	// Text is the full extracted text.
	Text string

	// Metadata carries file-level facts (name, size, hash, word count) plus
	// format-specific fields such as page_count and title for PDFs.
	Metadata map[string]string
}

// Extractor extracts text and metadata from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text plus enriched
// metadata. The format is chosen by file extension.
func (e *Extractor) Extract(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read file: %w", err)
	}

	meta := map[string]string{
		MetaFileName:            filepath.Base(path),
		MetaFileSize:            strconv.Itoa(len(content)),
		MetaFileHash:            fileHash(content),
		MetaExtractionTimestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		var info pdfInfo
		text, info, err = extractPDF(content)
		if err == nil {
			meta[MetaPageCount] = strconv.Itoa(info.pages)
			if info.title != "" {
				meta[MetaTitle] = info.title
			}
			if info.author != "" {
				meta[MetaAuthor] = info.author
			}
		}
	case ".docx":
		text, err = extractDOCX(content)
	default:
		// .txt, .md, and anything unrecognized.
		text, err = extractPlain(content)
	}
	if err != nil {
		return nil, fmt.Errorf("extract: %s: %w", filepath.Base(path), err)
	}

	meta[MetaWordCount] = strconv.Itoa(len(strings.Fields(text)))
	return &Document{Text: text, Metadata: meta}, nil
}

// fileHash returns the hex SHA-256 of the file content. Used by callers to
// derive stable document ids.
func fileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
