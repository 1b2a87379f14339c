package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestProducerConsumerRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	producer := NewProducer(rdb, "operator:jobs")
	consumer := NewConsumer(rdb, "operator:jobs")

	jobID := uuid.New()
	customerID := uuid.New()
	env := Envelope{
		JobID:      jobID,
		Type:       "provision",
		CustomerID: customerID,
		Payload:    []byte(`{"tier":"starter"}`),
	}

	if err := producer.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := consumer.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got.JobID != jobID {
		t.Errorf("JobID = %v, want %v", got.JobID, jobID)
	}
	if got.Type != "provision" {
		t.Errorf("Type = %q, want %q", got.Type, "provision")
	}
	if got.CustomerID != customerID {
		t.Errorf("CustomerID = %v, want %v", got.CustomerID, customerID)
	}
}

func TestConsumerPop_NoJob(t *testing.T) {
	rdb := newTestRedis(t)
	consumer := NewConsumer(rdb, "operator:jobs")

	_, err := consumer.Pop(context.Background())
	if err != ErrNoJob {
		t.Errorf("err = %v, want ErrNoJob", err)
	}
}

func TestLock_AcquireExcludesConcurrentHolder(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	customerID := uuid.New()

	lock, err := AcquireLock(ctx, rdb, customerID, time.Second)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	_, err = AcquireLock(ctx, rdb, customerID, 200*time.Millisecond)
	if err != ErrLockNotAcquired {
		t.Errorf("second AcquireLock err = %v, want ErrLockNotAcquired", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := AcquireLock(ctx, rdb, customerID, time.Second); err != nil {
		t.Errorf("AcquireLock after release: %v", err)
	}
}

func TestLock_ReleaseDoesNotStealForeignLock(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	customerID := uuid.New()

	first, err := AcquireLock(ctx, rdb, customerID, time.Second)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	// Simulate a lease expiry and a different holder re-acquiring the key
	// under a new token, then releasing the stale first Lock value.
	if err := rdb.Del(ctx, first.key).Err(); err != nil {
		t.Fatalf("Del: %v", err)
	}
	second, err := AcquireLock(ctx, rdb, customerID, time.Second)
	if err != nil {
		t.Fatalf("second AcquireLock: %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}

	val, err := rdb.Get(ctx, second.key).Result()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != second.token {
		t.Error("stale Release deleted the second holder's lock")
	}
}
