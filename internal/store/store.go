// Package store is the relational data layer shared by the orchestrator,
// billing reducer and metered proxy. It follows the generated-query-layer
// shape used throughout this codebase (a Queries struct wrapping a pool or
// connection, one method per statement) without depending on a code
// generator: the statements here are hand-written because this module's
// schema is small enough to maintain directly.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Customer mirrors the customers table.
type Customer struct {
	ID               uuid.UUID
	Email            string
	StripeCustomerID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Subscription mirrors the subscriptions table.
type Subscription struct {
	ID                   uuid.UUID
	CustomerID           uuid.UUID
	StripeSubscriptionID *string
	Tier                 string
	Status               string
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Box status values.
const (
	BoxStatusPending    = "pending"
	BoxStatusProvisioning = "provisioning"
	BoxStatusRunning    = "running"
	BoxStatusSuspended  = "suspended"
	BoxStatusUnhealthy  = "unhealthy"
	BoxStatusDestroyed  = "destroyed"
)

// Box mirrors the boxes table — one Kubernetes-backed customer instance.
type Box struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	SubscriptionID  uuid.UUID
	Namespace       string
	Tier            string
	Status          string
	BundleSlug      *string
	HealthFailures  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProxyToken mirrors the proxy_tokens table. Only the bcrypt hash of the
// token is stored; the raw token is never persisted.
type ProxyToken struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	BoxID      uuid.UUID
	TokenHash  string
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// UsageMonthly mirrors the usage_monthly table — one row per customer per
// billing period (YYYY-MM).
type UsageMonthly struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Period      string
	TokensUsed  int64
	TokensLimit int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UsageEvent mirrors the usage_events table — a durable record of a single
// metered LLM call, appended once the proxy flushes it from the stream.
type UsageEvent struct {
	ID               uuid.UUID
	CustomerID       uuid.UUID
	BoxID            uuid.UUID
	RequestID        string
	PromptTokens     int64
	CompletionTokens int64
	Model            string
	CreatedAt        time.Time
}

// OperatorJob status values.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusComplete = "complete"
	JobStatusFailed  = "failed"
)

// Job type names, matched against the envelope the orchestrator consumes
// from the shared queue.
const (
	JobTypeProvision         = "provision"
	JobTypeUpdate            = "update"
	JobTypeUpdateConnections = "update_connections"
	JobTypeResize            = "resize"
	JobTypeSuspend           = "suspend"
	JobTypeReactivate        = "reactivate"
	JobTypeDestroy           = "destroy"
	JobTypeHealthCheck       = "health_check"
)

// OperatorJob mirrors the operator_jobs table — one audit row per queue
// delivery attempt.
type OperatorJob struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	BoxID      *uuid.UUID
	JobType    string
	Payload    []byte
	Status     string
	Error      *string
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// CustomerConnection kind values.
const (
	ConnectionKindNative = "native"
	ConnectionKindMCP    = "mcp"
)

// CustomerConnection status values.
const (
	ConnectionStatusActive  = "active"
	ConnectionStatusDeleted = "deleted"
)

// CustomerConnection mirrors the customer_connections table.
type CustomerConnection struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Provider   string
	Kind       string
	Credential string
	Status     string
	CreatedAt  time.Time
}

// OnboardingSession mirrors the onboarding_sessions table.
type OnboardingSession struct {
	ID          uuid.UUID
	CustomerID  *uuid.UUID
	BundleSlug  *string
	State       []byte
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// BillingEvent mirrors the billing_events table — the idempotency ledger
// for inbound webhook events.
type BillingEvent struct {
	ID          string
	EventType   string
	ProcessedAt time.Time
}
