package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "datanav/internal/adapters/mcp"
	"datanav/internal/bootstrap"
	"datanav/internal/config"
	"datanav/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()
	// Stdout carries the MCP wire protocol, so all logging goes to stderr.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Answers, app.Simulations, version, logger)
	logger.Info("mcp server listening on stdio")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("mcp server error: %v", err)
	}
}
