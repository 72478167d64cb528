package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	redisclient "github.com/yungbote/metricsd/internal/clients/redis"
	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/logger"
)

// Moves records off the error queues back onto their source queues, for
// re-processing after the bug that failed them is fixed.
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

	if len(cfg.Queues) == 0 {
		log.Error("No queue to pull events from, set one up in the configuration file")
		return config.ExitNoQueue
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := redisclient.NewQueue(cfg.Redis, log)
	defer q.Close()

	if err := q.Ping(ctx); err != nil {
		log.Error("Connection failed", "error", err)
		return config.ExitConnectionError
	}

	for name := range cfg.Queues {
		pending, err := q.Len(ctx, redisclient.ErrorQueuePrefix+name)
		if err != nil {
			log.Error("Failed to measure error queue", "queue", name, "error", err)
			return config.ExitUnknownError
		}
		log.Info("Requeueing errored records", "queue", name, "pending", pending)

		var moved int64
		for {
			if ctx.Err() != nil {
				log.Warn("Interrupted", "queue", name, "moved", moved)
				return config.ExitUnknownError
			}
			record, err := q.PopError(ctx, name)
			if err != nil {
				log.Error("Failed to pop errored record", "queue", name, "error", err)
				return config.ExitUnknownError
			}
			if record == nil {
				break
			}
			if err := q.Push(ctx, name, record); err != nil {
				log.Error("Failed to push record back", "queue", name, "error", err)
				return config.ExitUnknownError
			}
			moved++
		}
		log.Info("Requeued errored records", "queue", name, "moved", moved)
	}
	return 0
}
