package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/cloud/internal/store"
)

func periodFromUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01")
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

type checkoutSessionObject struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// handleCheckoutSessionCompleted creates the subscription and its first
// usage_monthly row, then enqueues the box's initial provision job.
func handleCheckoutSessionCompleted(ctx context.Context, red *Reducer, object json.RawMessage) error {
	var session checkoutSessionObject
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("decoding checkout session: %w", err)
	}

	customerIDStr := session.Metadata["openclaw_customer_id"]
	if customerIDStr == "" {
		return fmt.Errorf("checkout.session.completed missing openclaw_customer_id metadata")
	}
	customerID, err := uuid.Parse(customerIDStr)
	if err != nil {
		return fmt.Errorf("parsing openclaw_customer_id: %w", err)
	}

	sub, err := red.Stripe.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("retrieving stripe subscription: %w", err)
	}
	price, ok := sub.price()
	if !ok {
		return fmt.Errorf("stripe subscription %s has no price item", session.Subscription)
	}
	product, err := red.Stripe.GetProduct(ctx, price.Product)
	if err != nil {
		return fmt.Errorf("retrieving stripe product: %w", err)
	}

	tier := product.Metadata["tier"]
	if tier == "" {
		tier = "starter"
	}
	tokensLimit := tokensLimitForTier(tier)
	if v := product.Metadata["tokens_limit"]; v != "" {
		if parsed, err := parseInt64(v); err == nil {
			tokensLimit = parsed
		}
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	period := periodFromUnix(sub.CurrentPeriodStart)

	q := store.New(red.Pool)

	if err := q.UpdateCustomerStripeID(ctx, customerID, session.Customer); err != nil {
		return fmt.Errorf("recording stripe customer id: %w", err)
	}

	if _, err := q.GetSubscriptionByStripeID(ctx, session.Subscription); err == nil {
		red.Logger.Info("subscription already exists, skipping", "stripe_subscription_id", session.Subscription)
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("checking for existing subscription: %w", err)
	}

	createdSub, err := q.CreateSubscription(ctx, store.CreateSubscriptionParams{
		CustomerID:           customerID,
		StripeSubscriptionID: &session.Subscription,
		Tier:                 tier,
		Status:               "active",
		CurrentPeriodEnd:     &periodEnd,
	})
	if err != nil {
		return fmt.Errorf("creating subscription: %w", err)
	}

	if err := q.UpsertUsageMonthlyLimit(ctx, customerID, period, tokensLimit); err != nil {
		return fmt.Errorf("creating usage_monthly row: %w", err)
	}

	if _, err := enqueueJob(ctx, q, red.Producer, store.JobTypeProvision, customerID, nil, map[string]any{
		"tier":            tier,
		"subscription_id": createdSub.ID,
	}); err != nil {
		return fmt.Errorf("enqueuing provision job: %w", err)
	}

	red.Logger.Info("checkout completed", "customer_id", customerID, "tier", tier, "stripe_subscription_id", session.Subscription)
	return nil
}

type invoiceObject struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	AttemptCount  int    `json:"attempt_count"`
}

// handleInvoicePaymentSucceeded resets the monthly token counter for the new
// billing period and reactivates a previously suspended subscription.
func handleInvoicePaymentSucceeded(ctx context.Context, red *Reducer, object json.RawMessage) error {
	var invoice invoiceObject
	if err := json.Unmarshal(object, &invoice); err != nil {
		return fmt.Errorf("decoding invoice: %w", err)
	}
	if invoice.Subscription == "" {
		red.Logger.Info("invoice has no subscription, skipping", "invoice_id", invoice.ID)
		return nil
	}
	if invoice.BillingReason == "subscription_create" {
		red.Logger.Info("skipping initial subscription invoice", "invoice_id", invoice.ID)
		return nil
	}

	q := store.New(red.Pool)
	existing, err := q.GetSubscriptionByStripeID(ctx, invoice.Subscription)
	if err != nil {
		return fmt.Errorf("no subscription found for stripe_subscription_id=%s: %w", invoice.Subscription, err)
	}

	sub, err := red.Stripe.GetSubscription(ctx, invoice.Subscription)
	if err != nil {
		return fmt.Errorf("retrieving stripe subscription: %w", err)
	}
	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	period := periodFromUnix(sub.CurrentPeriodStart)

	if err := q.UpdateSubscriptionPeriodEnd(ctx, existing.ID, periodEnd); err != nil {
		return fmt.Errorf("updating subscription period: %w", err)
	}

	tokensLimit := tokensLimitForTier(existing.Tier)
	if err := q.UpsertUsageMonthlyLimit(ctx, existing.CustomerID, period, tokensLimit); err != nil {
		return fmt.Errorf("resetting usage_monthly: %w", err)
	}

	if existing.Status != "suspended" {
		red.Logger.Info("payment succeeded, token counter reset", "subscription_id", existing.ID)
		return nil
	}

	if err := q.UpdateSubscriptionStatus(ctx, existing.ID, "active"); err != nil {
		return fmt.Errorf("reactivating subscription: %w", err)
	}

	boxes, err := q.ListBoxesByCustomer(ctx, existing.CustomerID)
	if err != nil {
		return fmt.Errorf("listing boxes: %w", err)
	}
	boxID := firstBoxWithStatus(boxes, store.BoxStatusSuspended)

	if _, err := enqueueJob(ctx, q, red.Producer, store.JobTypeReactivate, existing.CustomerID, boxID, map[string]any{
		"box_id": boxID,
	}); err != nil {
		return fmt.Errorf("enqueuing reactivate job: %w", err)
	}

	red.Logger.Info("reactivated suspended subscription", "subscription_id", existing.ID)
	return nil
}

// handleInvoicePaymentFailed suspends the subscription and its box after
// three failed payment attempts; earlier attempts are logged only.
func handleInvoicePaymentFailed(ctx context.Context, red *Reducer, object json.RawMessage) error {
	var invoice invoiceObject
	if err := json.Unmarshal(object, &invoice); err != nil {
		return fmt.Errorf("decoding invoice: %w", err)
	}
	if invoice.Subscription == "" {
		return nil
	}

	q := store.New(red.Pool)
	existing, err := q.GetSubscriptionByStripeID(ctx, invoice.Subscription)
	if err != nil {
		return fmt.Errorf("no subscription found for stripe_subscription_id=%s: %w", invoice.Subscription, err)
	}

	if invoice.AttemptCount < 3 {
		red.Logger.Warn("payment failed", "attempt", invoice.AttemptCount, "subscription_id", existing.ID)
		return nil
	}

	if err := q.UpdateSubscriptionStatus(ctx, existing.ID, "suspended"); err != nil {
		return fmt.Errorf("suspending subscription: %w", err)
	}

	boxes, err := q.ListBoxesByCustomer(ctx, existing.CustomerID)
	if err != nil {
		return fmt.Errorf("listing boxes: %w", err)
	}
	boxID := firstBoxWithStatus(boxes, store.BoxStatusRunning, store.BoxStatusUnhealthy)

	if _, err := enqueueJob(ctx, q, red.Producer, store.JobTypeSuspend, existing.CustomerID, boxID, map[string]any{
		"box_id": boxID,
	}); err != nil {
		return fmt.Errorf("enqueuing suspend job: %w", err)
	}

	red.Logger.Warn("payment failed repeatedly, suspending", "attempts", invoice.AttemptCount, "subscription_id", existing.ID)
	return nil
}

type subscriptionObject struct {
	ID    string `json:"id"`
	Items struct {
		Data []struct {
			Price stripePrice `json:"price"`
		} `json:"data"`
	} `json:"items"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// handleSubscriptionUpdated moves the subscription (and, if it changed, its
// box) to a new tier, or simply refreshes the billing period when the tier
// is unchanged.
func handleSubscriptionUpdated(ctx context.Context, red *Reducer, object json.RawMessage) error {
	var sub subscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return fmt.Errorf("decoding subscription: %w", err)
	}

	q := store.New(red.Pool)
	existing, err := q.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("no subscription found for stripe_subscription_id=%s: %w", sub.ID, err)
	}

	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no price item", sub.ID)
	}
	product, err := red.Stripe.GetProduct(ctx, sub.Items.Data[0].Price.Product)
	if err != nil {
		return fmt.Errorf("retrieving stripe product: %w", err)
	}
	newTier := product.Metadata["tier"]
	if newTier == "" {
		newTier = existing.Tier
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()

	if newTier == existing.Tier {
		if err := q.UpdateSubscriptionPeriodEnd(ctx, existing.ID, periodEnd); err != nil {
			return fmt.Errorf("updating subscription period: %w", err)
		}
		red.Logger.Info("subscription updated, no tier change", "subscription_id", existing.ID)
		return nil
	}

	newTokensLimit := tokensLimitForTier(newTier)
	if v := product.Metadata["tokens_limit"]; v != "" {
		if parsed, err := parseInt64(v); err == nil {
			newTokensLimit = parsed
		}
	}

	if err := q.UpdateSubscriptionTier(ctx, existing.ID, newTier); err != nil {
		return fmt.Errorf("updating subscription tier: %w", err)
	}
	if err := q.UpdateSubscriptionPeriodEnd(ctx, existing.ID, periodEnd); err != nil {
		return fmt.Errorf("updating subscription period: %w", err)
	}

	period := periodFromUnix(sub.CurrentPeriodStart)
	if err := q.UpsertUsageMonthlyLimit(ctx, existing.CustomerID, period, newTokensLimit); err != nil {
		return fmt.Errorf("updating usage_monthly limit: %w", err)
	}

	boxes, err := q.ListBoxesByCustomer(ctx, existing.CustomerID)
	if err != nil {
		return fmt.Errorf("listing boxes: %w", err)
	}
	var boxID *uuid.UUID
	if len(boxes) > 0 {
		id := boxes[0].ID
		boxID = &id
	}

	if _, err := enqueueJob(ctx, q, red.Producer, store.JobTypeResize, existing.CustomerID, boxID, map[string]any{
		"box_id":   boxID,
		"new_tier": newTier,
		"old_tier": existing.Tier,
	}); err != nil {
		return fmt.Errorf("enqueuing resize job: %w", err)
	}

	red.Logger.Info("subscription tier changed", "subscription_id", existing.ID, "old_tier", existing.Tier, "new_tier", newTier)
	return nil
}

// handleSubscriptionDeleted marks the subscription cancelled and enqueues
// destruction of its box.
func handleSubscriptionDeleted(ctx context.Context, red *Reducer, object json.RawMessage) error {
	var sub subscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return fmt.Errorf("decoding subscription: %w", err)
	}

	q := store.New(red.Pool)
	existing, err := q.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("no subscription found for stripe_subscription_id=%s: %w", sub.ID, err)
	}

	if err := q.UpdateSubscriptionStatus(ctx, existing.ID, "cancelled"); err != nil {
		return fmt.Errorf("cancelling subscription: %w", err)
	}

	boxes, err := q.ListBoxesByCustomer(ctx, existing.CustomerID)
	if err != nil {
		return fmt.Errorf("listing boxes: %w", err)
	}
	var boxID *uuid.UUID
	if len(boxes) > 0 {
		id := boxes[0].ID
		boxID = &id
	}

	if _, err := enqueueJob(ctx, q, red.Producer, store.JobTypeDestroy, existing.CustomerID, boxID, map[string]any{
		"box_id": boxID,
	}); err != nil {
		return fmt.Errorf("enqueuing destroy job: %w", err)
	}

	red.Logger.Info("subscription cancelled, enqueued destroy", "subscription_id", existing.ID, "customer_id", existing.CustomerID)
	return nil
}
