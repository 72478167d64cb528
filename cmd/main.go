package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/db"
	"github.com/yungbote/metricsd/internal/jobs/worker"
	"github.com/yungbote/metricsd/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "metricsd.toml", "path to the configuration file")
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

	for _, warning := range cfg.Warnings() {
		log.Warn(warning)
	}

	pg, err := db.NewPostgresService(cfg.PostgreSQL, cfg.Main.NumberOfWorkers, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		return config.ExitConnectionError
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		return config.ExitConnectionError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(cfg, pg, log)
	if err := pool.Run(ctx); err != nil {
		return exitCode(log, err)
	}
	log.Info("Shut down cleanly")
	return 0
}

func exitCode(log *logger.Logger, err error) int {
	var invalid *config.InvalidError
	var connection *worker.ConnectionError
	switch {
	case errors.Is(err, worker.ErrNoQueues):
		log.Error("No queue to pull events from, set one up in the configuration file")
		return config.ExitNoQueue
	case errors.As(err, &invalid):
		log.Error("Invalid configuration", "error", err)
		return config.ExitInvalidConfig
	case errors.As(err, &connection):
		log.Error("Connection failed", "error", err)
		return config.ExitConnectionError
	default:
		log.Error("Worker pool failed", "error", err)
		return config.ExitUnknownError
	}
}
