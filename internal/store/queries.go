package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx, the same
// narrow interface the rest of this codebase's query layer is written
// against so callers can pass either a pool or an acquired connection.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the hand-written query layer shared by every component. It
// wraps a DBTX, so the same methods run against a pool, a connection or a
// transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	var c Customer
	err := q.db.QueryRow(ctx, `
		SELECT id, email, stripe_customer_id, created_at, updated_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) GetCustomerByStripeID(ctx context.Context, stripeID string) (Customer, error) {
	var c Customer
	err := q.db.QueryRow(ctx, `
		SELECT id, email, stripe_customer_id, created_at, updated_at
		FROM customers WHERE stripe_customer_id = $1`, stripeID).
		Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) UpdateCustomerStripeID(ctx context.Context, id uuid.UUID, stripeCustomerID string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE customers SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`, id, stripeCustomerID)
	return err
}

func (q *Queries) CreateCustomer(ctx context.Context, email string, stripeCustomerID *string) (Customer, error) {
	var c Customer
	err := q.db.QueryRow(ctx, `
		INSERT INTO customers (email, stripe_customer_id)
		VALUES ($1, $2)
		RETURNING id, email, stripe_customer_id, created_at, updated_at`,
		email, stripeCustomerID).
		Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

type CreateSubscriptionParams struct {
	CustomerID           uuid.UUID
	StripeSubscriptionID *string
	Tier                 string
	Status               string
	CurrentPeriodEnd     *time.Time
}

func (q *Queries) CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (Subscription, error) {
	var s Subscription
	err := q.db.QueryRow(ctx, `
		INSERT INTO subscriptions (customer_id, stripe_subscription_id, tier, status, current_period_end)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, customer_id, stripe_subscription_id, tier, status, current_period_end, created_at, updated_at`,
		p.CustomerID, p.StripeSubscriptionID, p.Tier, p.Status, p.CurrentPeriodEnd).
		Scan(&s.ID, &s.CustomerID, &s.StripeSubscriptionID, &s.Tier, &s.Status, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) UpdateSubscriptionPeriodEnd(ctx context.Context, id uuid.UUID, periodEnd time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE subscriptions SET current_period_end = $2, updated_at = now() WHERE id = $1`, id, periodEnd)
	return err
}

func (q *Queries) GetSubscriptionByStripeID(ctx context.Context, stripeID string) (Subscription, error) {
	var s Subscription
	err := q.db.QueryRow(ctx, `
		SELECT id, customer_id, stripe_subscription_id, tier, status, current_period_end, created_at, updated_at
		FROM subscriptions WHERE stripe_subscription_id = $1`, stripeID).
		Scan(&s.ID, &s.CustomerID, &s.StripeSubscriptionID, &s.Tier, &s.Status, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (q *Queries) UpdateSubscriptionTier(ctx context.Context, id uuid.UUID, tier string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE subscriptions SET tier = $2, updated_at = now() WHERE id = $1`, id, tier)
	return err
}

type CreateBoxParams struct {
	CustomerID     uuid.UUID
	SubscriptionID uuid.UUID
	Namespace      string
	Tier           string
	BundleSlug     *string
}

func (q *Queries) CreateBox(ctx context.Context, p CreateBoxParams) (Box, error) {
	var b Box
	err := q.db.QueryRow(ctx, `
		INSERT INTO boxes (customer_id, subscription_id, namespace, tier, bundle_slug)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, customer_id, subscription_id, namespace, tier, status, bundle_slug, health_failures, created_at, updated_at`,
		p.CustomerID, p.SubscriptionID, p.Namespace, p.Tier, p.BundleSlug).
		Scan(&b.ID, &b.CustomerID, &b.SubscriptionID, &b.Namespace, &b.Tier, &b.Status, &b.BundleSlug, &b.HealthFailures, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) GetBox(ctx context.Context, id uuid.UUID) (Box, error) {
	var b Box
	err := q.db.QueryRow(ctx, `
		SELECT id, customer_id, subscription_id, namespace, tier, status, bundle_slug, health_failures, created_at, updated_at
		FROM boxes WHERE id = $1`, id).
		Scan(&b.ID, &b.CustomerID, &b.SubscriptionID, &b.Namespace, &b.Tier, &b.Status, &b.BundleSlug, &b.HealthFailures, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) ListBoxesByCustomer(ctx context.Context, customerID uuid.UUID) ([]Box, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, customer_id, subscription_id, namespace, tier, status, bundle_slug, health_failures, created_at, updated_at
		FROM boxes WHERE customer_id = $1 AND status != 'destroyed'`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boxes []Box
	for rows.Next() {
		var b Box
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.SubscriptionID, &b.Namespace, &b.Tier, &b.Status, &b.BundleSlug, &b.HealthFailures, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

func (q *Queries) ListActiveBoxes(ctx context.Context) ([]Box, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, customer_id, subscription_id, namespace, tier, status, bundle_slug, health_failures, created_at, updated_at
		FROM boxes WHERE status NOT IN ('destroyed', 'suspended')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boxes []Box
	for rows.Next() {
		var b Box
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.SubscriptionID, &b.Namespace, &b.Tier, &b.Status, &b.BundleSlug, &b.HealthFailures, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

func (q *Queries) UpdateBoxStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := q.db.Exec(ctx, `UPDATE boxes SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (q *Queries) UpdateBoxTier(ctx context.Context, id uuid.UUID, tier string) error {
	_, err := q.db.Exec(ctx, `UPDATE boxes SET tier = $2, updated_at = now() WHERE id = $1`, id, tier)
	return err
}

func (q *Queries) SetBoxHealthFailures(ctx context.Context, id uuid.UUID, count int) error {
	_, err := q.db.Exec(ctx, `UPDATE boxes SET health_failures = $2, updated_at = now() WHERE id = $1`, id, count)
	return err
}

type CreateProxyTokenParams struct {
	CustomerID uuid.UUID
	BoxID      uuid.UUID
	TokenHash  string
}

func (q *Queries) CreateProxyToken(ctx context.Context, p CreateProxyTokenParams) (ProxyToken, error) {
	var t ProxyToken
	err := q.db.QueryRow(ctx, `
		INSERT INTO proxy_tokens (customer_id, box_id, token_hash)
		VALUES ($1, $2, $3)
		RETURNING id, customer_id, box_id, token_hash, revoked_at, created_at`,
		p.CustomerID, p.BoxID, p.TokenHash).
		Scan(&t.ID, &t.CustomerID, &t.BoxID, &t.TokenHash, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func (q *Queries) ListActiveProxyTokens(ctx context.Context) ([]ProxyToken, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, customer_id, box_id, token_hash, revoked_at, created_at
		FROM proxy_tokens WHERE revoked_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []ProxyToken
	for rows.Next() {
		var t ProxyToken
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.BoxID, &t.TokenHash, &t.RevokedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// RevokeProxyToken marks a still-active token revoked. It reports whether a
// row was actually updated, so callers can distinguish "revoked" from
// "already revoked or unknown".
func (q *Queries) RevokeProxyToken(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE proxy_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) RevokeProxyTokensForBox(ctx context.Context, boxID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE proxy_tokens SET revoked_at = now() WHERE box_id = $1 AND revoked_at IS NULL`, boxID)
	return err
}

func (q *Queries) GetUsageMonthly(ctx context.Context, customerID uuid.UUID, period string) (UsageMonthly, error) {
	var u UsageMonthly
	err := q.db.QueryRow(ctx, `
		SELECT id, customer_id, period, tokens_used, tokens_limit, created_at, updated_at
		FROM usage_monthly WHERE customer_id = $1 AND period = $2`, customerID, period).
		Scan(&u.ID, &u.CustomerID, &u.Period, &u.TokensUsed, &u.TokensLimit, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetUsageMonthlyForActiveSubscription is GetUsageMonthly joined against an
// active subscription for the same customer. pgx.ErrNoRows covers both "no
// usage_monthly row yet" and "customer has no active subscription" — the
// two cases the proxy must treat identically, as a hard block.
func (q *Queries) GetUsageMonthlyForActiveSubscription(ctx context.Context, customerID uuid.UUID, period string) (UsageMonthly, error) {
	var u UsageMonthly
	err := q.db.QueryRow(ctx, `
		SELECT m.id, m.customer_id, m.period, m.tokens_used, m.tokens_limit, m.created_at, m.updated_at
		FROM usage_monthly m
		JOIN subscriptions s ON s.customer_id = m.customer_id
		WHERE m.customer_id = $1 AND m.period = $2 AND s.status = 'active'`, customerID, period).
		Scan(&u.ID, &u.CustomerID, &u.Period, &u.TokensUsed, &u.TokensLimit, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (q *Queries) UpsertUsageMonthlyLimit(ctx context.Context, customerID uuid.UUID, period string, limit int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO usage_monthly (customer_id, period, tokens_used, tokens_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (customer_id, period)
		DO UPDATE SET tokens_limit = $3, updated_at = now()`, customerID, period, limit)
	return err
}

func (q *Queries) IncrementUsageMonthly(ctx context.Context, customerID uuid.UUID, period string, tokens, defaultLimit int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO usage_monthly (customer_id, period, tokens_used, tokens_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id, period)
		DO UPDATE SET tokens_used = usage_monthly.tokens_used + $3, updated_at = now()`,
		customerID, period, tokens, defaultLimit)
	return err
}

type CreateUsageEventParams struct {
	CustomerID       uuid.UUID
	BoxID            uuid.UUID
	RequestID        string
	PromptTokens     int64
	CompletionTokens int64
	Model            string
}

func (q *Queries) CreateUsageEvent(ctx context.Context, p CreateUsageEventParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO usage_events (customer_id, box_id, request_id, prompt_tokens, completion_tokens, model)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.CustomerID, p.BoxID, p.RequestID, p.PromptTokens, p.CompletionTokens, p.Model)
	return err
}

type CreateOperatorJobParams struct {
	CustomerID uuid.UUID
	BoxID      *uuid.UUID
	JobType    string
	Payload    []byte
}

func (q *Queries) CreateOperatorJob(ctx context.Context, p CreateOperatorJobParams) (OperatorJob, error) {
	var j OperatorJob
	err := q.db.QueryRow(ctx, `
		INSERT INTO operator_jobs (customer_id, box_id, job_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, customer_id, box_id, job_type, payload, status, error, started_at, finished_at, created_at`,
		p.CustomerID, p.BoxID, p.JobType, p.Payload).
		Scan(&j.ID, &j.CustomerID, &j.BoxID, &j.JobType, &j.Payload, &j.Status, &j.Error, &j.StartedAt, &j.FinishedAt, &j.CreatedAt)
	return j, err
}

func (q *Queries) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE operator_jobs SET status = $2, started_at = now() WHERE id = $1`, id, JobStatusRunning)
	return err
}

func (q *Queries) MarkJobComplete(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE operator_jobs SET status = $2, finished_at = now() WHERE id = $1`, id, JobStatusComplete)
	return err
}

func (q *Queries) MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := q.db.Exec(ctx, `UPDATE operator_jobs SET status = $2, error = $3, finished_at = now() WHERE id = $1`, id, JobStatusFailed, errMsg)
	return err
}

// ListConnectionsByCustomer returns the customer's active (not soft-deleted)
// connections, the set update_connections rebuilds into the
// OPENCLAW_CONNECTIONS secret payload.
func (q *Queries) ListConnectionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]CustomerConnection, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, customer_id, provider, kind, credential, status, created_at
		FROM customer_connections WHERE customer_id = $1 AND status = $2`, customerID, ConnectionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []CustomerConnection
	for rows.Next() {
		var c CustomerConnection
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Provider, &c.Kind, &c.Credential, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// RecordBillingEvent inserts the idempotency row for a processed webhook
// event. A unique-violation on the primary key means the event was already
// handled; ErrDuplicateEvent is returned in that case so callers can skip
// re-processing without treating it as a failure.
func (q *Queries) RecordBillingEvent(ctx context.Context, id, eventType string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO billing_events (id, event_type) VALUES ($1, $2)`, id, eventType)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return err
}

var ErrDuplicateEvent = fmt.Errorf("billing event already processed")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
