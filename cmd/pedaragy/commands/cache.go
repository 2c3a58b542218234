package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/logging"
)

// NewCacheCmd constructs the `pedaragy cache` command group for inspecting
// and clearing the semantic answer cache.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the semantic answer cache",
	}

	cmd.AddCommand(newCacheStatsCmd(), newCacheClearCmd())
	return cmd
}

// newCacheStatsCmd constructs `pedaragy cache stats`.
func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache size and configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}
			defer stack.Close()

			stats, err := stack.Engine.CacheStats(ctx)
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats) //nolint:wrapcheck // CLI output path
		},
	}
}

// newCacheClearCmd constructs `pedaragy cache clear`.
func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			defer stack.Close()

			if err := stack.Engine.CacheClear(ctx); err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}
