package worker

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/metricsd/internal/catalog"
	redisclient "github.com/yungbote/metricsd/internal/clients/redis"
	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/db"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// fakeQueue serves pre-loaded records and captures error-queue pushes.
type fakeQueue struct {
	mu      sync.Mutex
	records [][]byte
	errored [][]byte
}

func (q *fakeQueue) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return "", nil, nil
	}
	record := q.records[0]
	q.records = q.records[1:]
	return queues[0], record, nil
}

func (q *fakeQueue) Push(ctx context.Context, queue string, record []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, record)
	return nil
}

func (q *fakeQueue) PushError(ctx context.Context, queue string, record []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errored = append(q.errored, record)
	return nil
}

func (q *fakeQueue) PopError(ctx context.Context, queue string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.errored) == 0 {
		return nil, nil
	}
	record := q.errored[0]
	q.errored = q.errored[1:]
	return record, nil
}

func (q *fakeQueue) Len(ctx context.Context, queue string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.records)), nil
}

func (q *fakeQueue) Ping(ctx context.Context) error { return nil }
func (q *fakeQueue) Close() error                   { return nil }

func testPool(t *testing.T, fq *fakeQueue) (*Pool, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Main: config.Main{NumberOfWorkers: 1, ExitOnEmptyQueues: true},
		Queues: map[string]config.Queue{
			"telemetry": {Handler: "metrics"},
		},
	}
	log := logger.NewNop()
	pool := NewPool(cfg, db.NewServiceFromDB(gdb, log), log)
	pool.newQueue = func() redisclient.Queue { return fq }
	return pool, gdb
}

func uptimeRecord(t *testing.T) []byte {
	t.Helper()
	payload := variant.NewVariant(variant.NewTuple(variant.NewInt64(3600), variant.NewInt64(4)))
	event := variant.NewTuple(
		variant.NewUint32(1),
		variant.NewBytes(catalog.UUIDUptime[:]),
		variant.NewInt64(0),
		variant.NewMaybe("v", &payload),
	)
	envelope := variant.NewTuple(
		variant.NewInt32(1),
		variant.NewInt64(1_000_000_000),
		variant.NewInt64(1_600_000_000_000_000_000),
		variant.NewBytes([]byte("0123456789abcdef")),
		variant.NewArray("(uayxmv)", event),
		variant.NewArray("(uayxxmv)"),
		variant.NewArray("(uaya(xmv))"),
	)
	body := variant.Encode(envelope)
	record := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(record, 1_500_000_000_000_000)
	return append(record, body...)
}

func TestPoolDrainsQueueAndExits(t *testing.T) {
	fq := &fakeQueue{records: [][]byte{uptimeRecord(t)}}
	pool, gdb := testPool(t, fq)

	if err := pool.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var n int64
	if err := gdb.Model(&types.Uptime{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("%d uptime rows", n)
	}
}

func TestPoolMovesBadRecordsToErrorQueue(t *testing.T) {
	bad := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xff}
	fq := &fakeQueue{records: [][]byte{bad, uptimeRecord(t)}}
	pool, gdb := testPool(t, fq)

	if err := pool.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(fq.errored) != 1 {
		t.Fatalf("%d errored records", len(fq.errored))
	}
	var n int64
	if err := gdb.Model(&types.Uptime{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("%d uptime rows", n)
	}
	var requests int64
	if err := gdb.Model(&types.MetricsRequest{}).Count(&requests).Error; err != nil {
		t.Fatal(err)
	}
	if requests != 1 {
		t.Fatalf("%d requests", requests)
	}
}

func TestPoolRefusesEmptyConfiguration(t *testing.T) {
	pool, _ := testPool(t, &fakeQueue{})
	pool.cfg.Queues = map[string]config.Queue{}

	if err := pool.Run(context.Background()); err != ErrNoQueues {
		t.Fatalf("expected ErrNoQueues, got %v", err)
	}
}

func TestPoolRejectsUnknownHandler(t *testing.T) {
	pool, _ := testPool(t, &fakeQueue{})
	pool.cfg.Queues = map[string]config.Queue{"telemetry": {Handler: "nope"}}

	err := pool.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*config.InvalidError); !ok {
		t.Fatalf("expected InvalidError, got %T", err)
	}
}
