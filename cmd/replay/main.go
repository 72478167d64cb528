package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/db"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/replay"
)

// Re-dispatches stored unknown and invalid events after a catalog change.
func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "metricsd.toml", "path to the configuration file")
	chunkSize := flag.Int("chunk-size", replay.DefaultChunkSize, "catch-all rows replayed per transaction")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return config.ExitInvalidConfig
	}

	log, err := logger.New(cfg.Main.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return config.ExitUnknownError
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(cfg.PostgreSQL, 1, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		return config.ExitConnectionError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := replay.New(pg.DB(), *chunkSize, log).Run(ctx); err != nil {
		log.Error("Replay failed", "error", err)
		return config.ExitUnknownError
	}
	log.Info("Replay finished")
	return 0
}
