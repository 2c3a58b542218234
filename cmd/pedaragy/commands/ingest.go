package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/logging"
)

// NewIngestCmd constructs the `pedaragy ingest` command, which extracts,
// chunks, embeds, and indexes one or more documents.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file ...]",
		Short: "Ingest documents into the vector index",
		Long: `Extract, chunk, embed, and index study material.

PDF, DOCX, and plain-text files are supported. Documents are split on the
configured boundary (default "Chapter"; override with CHUNK_BOUNDARY) and
each chunk is embedded and stored with its source metadata. Re-ingesting
the same file overwrites its previous chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Document collection name (default: pedaragy-docs)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  pedaragy ingest biology-textbook.pdf
  pedaragy ingest notes/*.docx
  CHUNK_BOUNDARY="Section" pedaragy ingest handbook.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer stack.Close()

			for _, path := range args {
				res, err := stack.Engine.Ingest(ctx, path, func(msg string) {
					log.Info(msg)
				})
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("%s: %d chunks indexed\n", res.Source, res.ChunksIndexed)
			}
			return nil
		},
	}

	return cmd
}
