package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/logging"
)

// NewAskCmd constructs the `pedaragy ask` command, which answers a single
// question from the indexed material and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	var mode string
	var model string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested material",
		Long: `Ask a question grounded in the ingested study material.

The semantic cache is consulted first: a question similar in meaning to a
previously answered one returns the cached answer instantly. On a miss the
engine retrieves the most relevant chunks and generates a fresh answer.

Examples:
  pedaragy ask "what is DNA?"
  pedaragy ask --mode quiz "photosynthesis"
  pedaragy ask --mode hint --model mistral "why do cells divide?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer stack.Close()

			res, err := stack.Engine.Ask(ctx, args[0], mode, model)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res) //nolint:wrapcheck // CLI output path
			}

			if res.Cached {
				fmt.Printf("(cached, similarity %.2f, originally asked as %q)\n\n", res.SimilarityScore, res.OriginalQuery)
			}
			fmt.Println(res.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "explain", "Response mode: explain, quiz, hint")
	cmd.Flags().StringVar(&model, "model", "", "Override the configured generation model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
