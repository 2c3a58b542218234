package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/pedaragy/pedaragy-go/internal/logging"
	"github.com/pedaragy/pedaragy-go/internal/server"
	"github.com/pedaragy/pedaragy-go/internal/store"
	"github.com/pedaragy/pedaragy-go/internal/tracing"
)

// NewServeCmd constructs the `pedaragy serve` command, which starts the
// HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PedaRAGy HTTP API server",
		Long: `Start the PedaRAGy HTTP server on localhost.

The server exposes a REST API for asking questions, ingesting material,
searching the index, and managing the semantic cache, plus health,
readiness, and Prometheus metrics endpoints.

Examples:
  pedaragy serve
  pedaragy serve --port 9090
  MODEL_PROVIDER=azure pedaragy serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			stack, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.Close()

			// Open the ask/ingest query log. PEDARAGY_QUERYLOG_DB overrides
			// the default path (~/.pedaragy/querylog.db). Set to "disabled"
			// to disable.
			var queryLog store.QueryLog
			dbPath := os.Getenv("PEDARAGY_QUERYLOG_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("query log: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					ql, qlErr := store.Open(dbPath)
					if qlErr != nil {
						log.Warn("query log: failed to open, disabling", slog.Any("error", qlErr))
					} else {
						queryLog = ql
						defer func() { _ = ql.Close() }()
						log.Info("query log: opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("query log: disabled via PEDARAGY_QUERYLOG_DB=disabled")
			}

			srv, err := server.New(stack.Engine, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  buildPingers(stack),
				APIKey:   os.Getenv("PEDARAGY_API_KEY"),
				QueryLog: queryLog,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
