// Package billing turns Stripe webhook events into subscription state and
// orchestrator jobs. Every event is recorded against an idempotency ledger
// before it is reduced, so a redelivered webhook is a no-op rather than a
// duplicate provision or resize.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/queue"
	"github.com/openclaw/cloud/internal/store"
	"github.com/openclaw/cloud/internal/telemetry"
)

// tokensLimitForTier looks the tier up in store.TierTokenLimit, the same
// table the rest of the system uses; it keeps no table of its own. The
// handlers use it when a Stripe product's metadata has no usable
// tokens_limit.
func tokensLimitForTier(tier string) int64 {
	return store.TokenLimitForTier(tier)
}

// Reducer applies Stripe webhook events to the relational model and
// enqueues the orchestrator jobs those transitions imply.
type Reducer struct {
	Pool     *pgxpool.Pool
	Producer *queue.Producer
	Stripe   *stripeClient
	Logger   *slog.Logger
}

// New builds a Reducer. queueKey is the Redis list the orchestrator drains.
func New(pool *pgxpool.Pool, rdb *redis.Client, queueKey string, stripeSecretKey string, logger *slog.Logger) *Reducer {
	return &Reducer{
		Pool:     pool,
		Producer: queue.NewProducer(rdb, queueKey),
		Stripe:   newStripeClient(stripeSecretKey),
		Logger:   logger,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object             json.RawMessage `json:"object"`
		PreviousAttributes json.RawMessage `json:"previous_attributes"`
	} `json:"data"`
}

// ErrMalformedPayload marks a body that failed to decode as a Stripe event
// at all — distinct from a well-formed event the reducer doesn't act on, so
// callers can answer 400 instead of 500.
var ErrMalformedPayload = errors.New("malformed stripe event payload")

// HandleEvent decodes a verified webhook body, records it against the
// idempotency ledger, and dispatches it to the matching reducer. It reports
// whether the event type was recognized: an unknown event type is logged
// and ignored — exactly as the reducer's own dispatch table has no entry
// for it, Stripe sends many more event types than this system acts on —
// and the caller answers "ignored" rather than "ok" for it.
func (red *Reducer) HandleEvent(ctx context.Context, body []byte) (ignored bool, err error) {
	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	q := store.New(red.Pool)
	if err := q.RecordBillingEvent(ctx, ev.ID, ev.Type); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			red.Logger.Info("billing event already processed, skipping", "event_id", ev.ID, "type", ev.Type)
			return false, nil
		}
		return false, fmt.Errorf("recording billing event: %w", err)
	}

	handler, ok := eventHandlers[ev.Type]
	if !ok {
		red.Logger.Debug("unhandled stripe event type", "type", ev.Type)
		return true, nil
	}

	if err := handler(ctx, red, ev.Data.Object); err != nil {
		telemetry.BillingEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return false, fmt.Errorf("handling %s (id=%s): %w", ev.Type, ev.ID, err)
	}
	telemetry.BillingEventsTotal.WithLabelValues(ev.Type, "ok").Inc()
	return false, nil
}

type eventHandlerFunc func(ctx context.Context, red *Reducer, object json.RawMessage) error

var eventHandlers = map[string]eventHandlerFunc{
	"checkout.session.completed":    handleCheckoutSessionCompleted,
	"invoice.payment_succeeded":     handleInvoicePaymentSucceeded,
	"invoice.payment_failed":        handleInvoicePaymentFailed,
	"customer.subscription.updated": handleSubscriptionUpdated,
	"customer.subscription.deleted": handleSubscriptionDeleted,
}

// enqueueJob writes the operator_jobs audit row and pushes the matching
// envelope onto the shared queue in the same call, so the orchestrator can
// report status back against the row the reducer created.
func enqueueJob(ctx context.Context, q *store.Queries, producer *queue.Producer, jobType string, customerID uuid.UUID, boxID *uuid.UUID, payload any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding job payload: %w", err)
	}

	job, err := q.CreateOperatorJob(ctx, store.CreateOperatorJobParams{
		CustomerID: customerID,
		BoxID:      boxID,
		JobType:    jobType,
		Payload:    body,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("recording operator job: %w", err)
	}

	env := queue.Envelope{
		JobID:      job.ID,
		Type:       jobType,
		CustomerID: customerID,
		BoxID:      boxID,
		Payload:    body,
	}
	if err := producer.Enqueue(ctx, env); err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

// firstBoxWithStatus returns the first box for a customer whose status is
// one of wanted, or nil if none match — the Go equivalent of the reducer's
// "find the box to act on" queries, done in application code since the
// store layer doesn't expose arbitrary per-status WHERE clauses.
func firstBoxWithStatus(boxes []store.Box, wanted ...string) *uuid.UUID {
	for _, b := range boxes {
		for _, w := range wanted {
			if b.Status == w {
				id := b.ID
				return &id
			}
		}
	}
	return nil
}
