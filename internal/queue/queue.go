// Package queue implements the operator job queue: a Redis list the API
// shell and billing reducer push onto, and the orchestrator drains with a
// blocking pop, plus the per-customer distributed lock that serializes job
// execution for a given customer.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Envelope is the job payload pushed onto the queue. Type and CustomerID
// are read by every consumer before dispatch; Payload is decoded again,
// per job type, by the handler that owns it — no untyped map is passed
// across that boundary.
type Envelope struct {
	JobID      uuid.UUID       `json:"job_id"`
	Type       string          `json:"type"`
	CustomerID uuid.UUID       `json:"customer_id"`
	BoxID      *uuid.UUID      `json:"box_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// Producer pushes job envelopes onto the shared queue.
type Producer struct {
	rdb *redis.Client
	key string
}

func NewProducer(rdb *redis.Client, key string) *Producer {
	return &Producer{rdb: rdb, key: key}
}

// Enqueue serializes and pushes an envelope. It does not itself insert the
// OperatorJob audit row — callers create that first and pass its ID as
// JobID so the orchestrator can report back against the same row.
func (p *Producer) Enqueue(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding job envelope: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.key, body).Err(); err != nil {
		return fmt.Errorf("pushing job to %s: %w", p.key, err)
	}
	return nil
}

// ErrNoJob is returned by Consumer.Pop when the poll timeout elapses with
// nothing on the queue.
var ErrNoJob = errors.New("queue: no job available")

// Consumer drains the shared queue with a short blocking pop, the same
// BLPOP-with-short-timeout shape the original dispatch loop used so the
// loop can still observe context cancellation between polls.
type Consumer struct {
	rdb *redis.Client
	key string
}

func NewConsumer(rdb *redis.Client, key string) *Consumer {
	return &Consumer{rdb: rdb, key: key}
}

// Pop blocks up to one second waiting for a job, returning ErrNoJob if none
// arrives — callers loop on that to keep checking ctx.Done().
func (c *Consumer) Pop(ctx context.Context) (Envelope, error) {
	res, err := c.rdb.BLPop(ctx, time.Second, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return Envelope{}, ErrNoJob
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("popping job from %s: %w", c.key, err)
	}
	// BLPOP returns [key, value]; res[0] is the list key, res[1] the body.
	if len(res) != 2 {
		return Envelope{}, fmt.Errorf("unexpected BLPOP result shape: %v", res)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding job envelope: %w", err)
	}
	return env, nil
}
