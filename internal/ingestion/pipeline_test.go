package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// fakeEmbedder returns a distinct unit vector per input position.
type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i) * 0.001, 0}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *vectorindex.MemoryIndex, *fakeEmbedder) {
	t.Helper()
	emb := &fakeEmbedder{}
	ix := vectorindex.NewMemoryIndex(3)
	p, err := NewPipeline(emb, ix, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, ix, emb
}

func TestIngestText(t *testing.T) {
	t.Parallel()
	p, ix, emb := newTestPipeline(t, nil)
	ctx := context.Background()

	res, err := p.IngestText(ctx, "bio.pdf", "Chapter 1 cells Chapter 2 genetics", nil)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.ChunksIndexed != 2 {
		t.Fatalf("want 2 chunks indexed, got %d", res.ChunksIndexed)
	}
	if res.DocumentID != "bio.pdf" || res.Source != "bio.pdf" {
		t.Errorf("result: %+v", res)
	}
	if emb.calls != 1 {
		t.Errorf("want one batched embed call, got %d", emb.calls)
	}

	stats, err := ix.Stats(ctx, vectorindex.DefaultNamespace)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("index count: want 2, got %d", stats.Count)
	}

	results, err := ix.Query(ctx, vectorindex.DefaultNamespace, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, r := range results {
		if r.Metadata["chunk_method"] != "chapter" {
			t.Errorf("chunk_method: got %q", r.Metadata["chunk_method"])
		}
		if r.Metadata["source"] != "bio.pdf" {
			t.Errorf("source: got %q", r.Metadata["source"])
		}
		if r.Text == "" {
			t.Error("chunk text not stored")
		}
	}
}

func TestIngestText_ReingestOverwrites(t *testing.T) {
	t.Parallel()
	p, ix, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	if _, err := p.IngestText(ctx, "doc", "Chapter 1 a Chapter 2 b", nil); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := p.IngestText(ctx, "doc", "Chapter 1 a Chapter 2 b", nil); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	stats, err := ix.Stats(ctx, vectorindex.DefaultNamespace)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("re-ingest duplicated chunks: count = %d", stats.Count)
	}
}

func TestIngestText_EmptyTextIndexesNothing(t *testing.T) {
	t.Parallel()
	p, ix, emb := newTestPipeline(t, nil)
	ctx := context.Background()

	res, err := p.IngestText(ctx, "empty", "   ", nil)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.ChunksIndexed != 0 {
		t.Errorf("want 0 chunks, got %d", res.ChunksIndexed)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called for empty document")
	}
	stats, _ := ix.Stats(ctx, vectorindex.DefaultNamespace)
	if stats.Count != 0 {
		t.Errorf("index not empty: %d", stats.Count)
	}
}

func TestIngestText_EmbedFailure(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{err: errors.New("model offline")}
	ix := vectorindex.NewMemoryIndex(3)
	p, err := NewPipeline(emb, ix, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.IngestText(context.Background(), "doc", "Chapter 1 text", nil); err == nil {
		t.Fatal("want embed error, got nil")
	}
	stats, _ := ix.Stats(context.Background(), vectorindex.DefaultNamespace)
	if stats.Count != 0 {
		t.Errorf("failed ingest wrote to index: %d", stats.Count)
	}
}

func TestIngestText_RequiresDocumentID(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPipeline(t, nil)
	if _, err := p.IngestText(context.Background(), "", "text", nil); err == nil {
		t.Error("want error for empty document id")
	}
}

func TestIngestFile(t *testing.T) {
	t.Parallel()
	p, ix, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "lecture.txt")
	if err := os.WriteFile(path, []byte("Chapter 1 mitosis Chapter 2 meiosis"), 0o600); err != nil {
		t.Fatal(err)
	}

	var msgs []string
	res, err := p.IngestFile(ctx, path, func(m string) { msgs = append(msgs, m) })
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.DocumentID != "lecture.txt" {
		t.Errorf("document id: got %q", res.DocumentID)
	}
	if res.ChunksIndexed != 2 {
		t.Errorf("chunks: got %d", res.ChunksIndexed)
	}
	if len(msgs) == 0 {
		t.Error("no progress reported")
	}

	// File-level metadata is stamped on each chunk.
	results, err := ix.Query(ctx, vectorindex.DefaultNamespace, []float32{1, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].Metadata["file_name"] != "lecture.txt" {
		t.Errorf("file_name: got %q", results[0].Metadata["file_name"])
	}
	if results[0].Metadata["file_hash"] == "" {
		t.Error("file_hash missing from chunk metadata")
	}
}

func TestIngestFile_MissingFile(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPipeline(t, nil)
	if _, err := p.IngestFile(context.Background(), "/nonexistent.txt", nil); err == nil {
		t.Error("want error for missing file")
	}
}

func TestBoundaryMethod(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Chapter": "chapter",
		"Section": "section",
		"\n\n":    "paragraph",
		"###":     "custom",
	}
	for boundary, want := range cases {
		if got := boundaryMethod(boundary); got != want {
			t.Errorf("boundaryMethod(%q): want %q, got %q", boundary, want, got)
		}
	}
}

func TestChunkMetadata_CopiesBase(t *testing.T) {
	t.Parallel()
	base := map[string]string{"title": "Biology 101"}
	p, _, _ := newTestPipeline(t, nil)

	if _, err := p.IngestText(context.Background(), "doc", "Chapter 1 a Chapter 2 b", base); err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if len(base) != 1 {
		t.Errorf("input metadata mutated: %v", base)
	}
}
