package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/logging"
	"github.com/pedaragy/pedaragy-go/internal/vectorindex"
)

// NewSearchCmd constructs the `pedaragy search` command, which runs raw
// retrieval against the document index without cache or generation.
func NewSearchCmd() *cobra.Command {
	var topK int
	var source string
	var minScore float32
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed material without generating an answer",
		Long: `Search the document index and print the matching chunks with their
relevance scores. Useful for checking what context a question would
retrieve before asking it.

Examples:
  pedaragy search "mitochondria"
  pedaragy search --top-k 3 --source biology-textbook.pdf "cell membrane"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer stack.Close()

			var filter *vectorindex.Filter
			if source != "" {
				filter = &vectorindex.Filter{Equals: map[string]string{"source": source}}
			}

			results, err := stack.Engine.RawSearch(ctx, args[0], topK, filter, minScore)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results) //nolint:wrapcheck // CLI output path
			}

			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%.2f%%] %s\n   %s\n", i+1, r.RelevancePercentage, r.ID, r.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default: engine setting)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Restrict results to one source document")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "Drop results below this similarity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}
