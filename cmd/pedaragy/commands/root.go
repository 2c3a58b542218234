// Package commands defines all Cobra CLI commands for the pedaragy binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/audit"
	"github.com/pedaragy/pedaragy-go/internal/config"
	"github.com/pedaragy/pedaragy-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pedaragy",
		Short: "PedaRAGy — a RAG tutoring engine with a semantic answer cache",
		Long: `PedaRAGy is a retrieval-augmented tutoring engine for study material.

Ingest textbooks and lecture notes, then ask questions in explain, quiz,
or hint mode. Answers are grounded in the indexed material and cached by
meaning: a semantically similar question is served instantly without a
second LLM call.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.pedaragy/config.yaml).
See 'pedaragy --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pedaragy/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewCacheCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
