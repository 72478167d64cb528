package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/metricsd/internal/clients/redis"
	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/db"
	"github.com/yungbote/metricsd/internal/ingest"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/repos"
)

// Handler processes one raw queue record inside a database transaction.
type Handler func(ctx context.Context, tx *gorm.DB, record []byte) error

// ErrNoQueues means the configuration binds no queue to any handler, so there
// is nothing to drain.
var ErrNoQueues = errors.New("no queues to work on")

// ConnectionError wraps a startup probe failure against the broker or the
// database; it maps to a dedicated exit code.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// popTimeout bounds each blocking pop so workers notice shutdown and the
// exit-on-empty-queues development option promptly.
const popTimeout = 5 * time.Second

// Pool drains the configured queues with a fixed set of workers. Each worker
// owns its broker connection; the database pool is shared and sized to the
// worker count so each transaction gets a connection without queueing.
type Pool struct {
	cfg      *config.Config
	log      *logger.Logger
	pg       *db.PostgresService
	handlers map[string]Handler
	newQueue func() redisclient.Queue
}

func NewPool(cfg *config.Config, pg *db.PostgresService, log *logger.Logger) *Pool {
	p := &Pool{
		cfg: cfg,
		log: log.With("component", "WorkerPool"),
		pg:  pg,
		newQueue: func() redisclient.Queue {
			return redisclient.NewQueue(cfg.Redis, log)
		},
	}
	p.handlers = map[string]Handler{
		"metrics": newMetricsHandler(pg.DB(), log),
	}
	return p
}

// newMetricsHandler wires the ingestion pipeline behind the "metrics" handler
// name used in queue configuration.
func newMetricsHandler(gdb *gorm.DB, log *logger.Logger) Handler {
	processor := ingest.NewProcessor(
		repos.NewRequestRepo(gdb, log),
		repos.NewEventRepo(gdb, log),
		repos.NewMachineRepo(gdb, log),
		log,
	)
	return processor.HandleRecord
}

// Run blocks until the context is cancelled, a worker fails, or (with
// exit_on_empty_queues) the queues drain.
func (p *Pool) Run(ctx context.Context) error {
	queues := p.cfg.QueueNames()
	if len(queues) == 0 {
		return ErrNoQueues
	}
	for name, q := range p.cfg.Queues {
		if _, ok := p.handlers[q.Handler]; !ok {
			return &config.InvalidError{
				Option: "queues." + name + ".handler",
				Reason: fmt.Sprintf("%q is not a registered handler", q.Handler),
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Main.NumberOfWorkers; i++ {
		id := i + 1
		g.Go(func() error {
			return p.runWorker(ctx, id, queues)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int, queues []string) error {
	log := p.log.With("worker", id)

	q := p.newQueue()
	defer q.Close()

	if err := q.Ping(ctx); err != nil {
		return &ConnectionError{Target: "the Redis server", Err: err}
	}
	if err := p.pg.Ping(ctx); err != nil {
		return &ConnectionError{Target: "the PostgreSQL server", Err: err}
	}

	log.Info("Worker started", "queues", queues)
	for {
		if ctx.Err() != nil {
			log.Info("Worker stopping")
			return nil
		}

		queueName, record, err := q.Pop(ctx, queues, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Worker stopping")
				return nil
			}
			return fmt.Errorf("pop: %w", err)
		}
		if record == nil {
			if p.cfg.Main.ExitOnEmptyQueues {
				log.Info("Queues are empty, exiting")
				return nil
			}
			continue
		}

		handler := p.handlers[p.cfg.Queues[queueName].Handler]
		err = p.pg.DB().Transaction(func(tx *gorm.DB) error {
			return handler(ctx, tx, record)
		})
		if err != nil {
			log.Error("Failed to process record, moving it to the error queue",
				"queue", queueName, "error", err)
			if pushErr := q.PushError(ctx, queueName, record); pushErr != nil {
				return fmt.Errorf("push to error queue: %w", pushErr)
			}
		}
	}
}
