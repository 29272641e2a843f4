// Command resync rebuilds the search index from the catalog export once and
// prints the run report as JSON. It reads the same environment as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utafrali/catalogsearch/internal/app"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/internal/syncer"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

func main() {
	replaceAll := flag.Bool("replace-all", false, "drop and recreate the index before loading")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Event consumption belongs to the long-running server.
	cfg.KafkaEnabled = false

	log := logger.New("search-resync", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	application, err := app.NewApp(initCtx, cfg, log)
	initCancel()
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	report, runErr := application.Resync(ctx, syncer.ResyncOptions{ReplaceAll: *replaceAll})
	if shutdownErr := application.Shutdown(); shutdownErr != nil {
		log.Warn("shutdown error", slog.String("error", shutdownErr.Error()))
	}

	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if runErr != nil {
		log.Error("resync failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	if report.Failed > 0 {
		os.Exit(2)
	}
}
