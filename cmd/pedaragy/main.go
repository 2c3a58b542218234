// Command pedaragy is the entry point for the PedaRAGy tutoring engine.
// It provides a CLI interface (via Cobra) for asking questions, ingesting
// study material, and inspecting the semantic cache, plus an HTTP server
// for programmatic use.
package main

import (
	"fmt"
	"os"

	// Load .env before any env var is read.
	_ "github.com/joho/godotenv/autoload"

	"github.com/pedaragy/pedaragy-go/cmd/pedaragy/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
