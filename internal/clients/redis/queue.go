package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/logger"
)

// ErrorQueuePrefix is prepended to a queue name to form the parallel list
// holding records that could not be processed.
const ErrorQueuePrefix = "errors-"

// Queue is the broker adapter: blocking pop shared across the configured
// queues, plus the push/len/pop surface the housekeeping commands use.
type Queue interface {
	// Pop blocks for up to timeout on all queues at once. A timeout returns
	// ("", nil, nil).
	Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error)
	Push(ctx context.Context, queue string, record []byte) error
	PushError(ctx context.Context, queue string, record []byte) error
	PopError(ctx context.Context, queue string) ([]byte, error)
	Len(ctx context.Context, queue string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type queue struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewQueue opens one broker connection. Every worker owns its own.
func NewQueue(cfg config.Redis, log *logger.Logger) Queue {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	return &queue{
		log: log.With("client", "RedisQueue"),
		rdb: rdb,
	}
}

func (q *queue) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, queues...).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("brpop: %w", err)
	}
	if len(res) != 2 {
		return "", nil, fmt.Errorf("brpop: unexpected reply of %d elements", len(res))
	}
	return res[0], []byte(res[1]), nil
}

func (q *queue) Push(ctx context.Context, name string, record []byte) error {
	return q.rdb.LPush(ctx, name, record).Err()
}

func (q *queue) PushError(ctx context.Context, name string, record []byte) error {
	return q.rdb.LPush(ctx, ErrorQueuePrefix+name, record).Err()
}

// PopError takes one record back off the error queue, oldest first.
func (q *queue) PopError(ctx context.Context, name string) ([]byte, error) {
	raw, err := q.rdb.RPop(ctx, ErrorQueuePrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func (q *queue) Len(ctx context.Context, name string) (int64, error) {
	return q.rdb.LLen(ctx, name).Result()
}

func (q *queue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (q *queue) Close() error {
	return q.rdb.Close()
}
