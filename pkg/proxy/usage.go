package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/store"
	"github.com/openclaw/cloud/internal/telemetry"
)

const usageConsumerName = "proxy-worker"

// pushUsageEvent appends a metered call to the usage stream. It's called
// fire-and-forget from the request path — the consumer loop is what makes
// the write durable, so a slow or failed XADD here only risks losing one
// event, never blocking the response to the caller.
func (p *Proxy) pushUsageEvent(ctx context.Context, customerID, boxID string, usage usageInfo) {
	if !usage.metered() {
		return
	}
	err := p.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Cfg.UsageStreamKey,
		Values: map[string]any{
			"customer_id":       customerID,
			"box_id":            boxID,
			"model":             usage.Model,
			"prompt_tokens":     strconv.FormatInt(usage.PromptTokens, 10),
			"completion_tokens": strconv.FormatInt(usage.CompletionTokens, 10),
			"request_id":        usage.RequestID,
			"timestamp":         strconv.FormatInt(time.Now().Unix(), 10),
		},
	}).Err()
	if err != nil {
		p.Logger.Error("pushing usage event", "error", err, "customer_id", customerID)
	}
	telemetry.ProxyTokensMetered.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	telemetry.ProxyTokensMetered.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
}

type usageRecord struct {
	msgID            string
	customerID       string
	boxID            string
	model            string
	promptTokens     int64
	completionTokens int64
	requestID        string
}

func (r usageRecord) effectiveRequestID() string {
	if r.requestID != "" {
		return r.requestID
	}
	return r.msgID
}

// RunUsageConsumer drains the usage stream through a consumer group,
// batching writes to Postgres: each flush inserts the batch's usage_events
// rows one by one and folds them into a single usage_monthly increment per
// customer. It creates the consumer group idempotently
// on startup and keeps running until ctx is cancelled, flushing whatever
// it's holding before it returns.
func (p *Proxy) RunUsageConsumer(ctx context.Context) error {
	err := p.Redis.XGroupCreateMkStream(ctx, p.Cfg.UsageStreamKey, p.Cfg.UsageConsumerGroup, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) && !alreadyExistsGroup(err) {
		return fmt.Errorf("creating usage consumer group: %w", err)
	}

	var batch []usageRecord
	flushInterval := 5 * time.Second
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
		}
		if err := p.flushUsageBatch(flushCtx, batch); err != nil {
			p.Logger.Error("flushing usage batch", "error", err)
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Cfg.UsageConsumerGroup,
			Consumer: usageConsumerName,
			Streams:  []string{p.Cfg.UsageStreamKey, ">"},
			Count:    int64(p.Cfg.UsageFlushBatch),
			Block:    flushInterval,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				flush()
				return nil
			}
			p.Logger.Error("reading usage stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				batch = append(batch, parseUsageRecord(msg))
			}
		}

		if len(batch) >= p.Cfg.UsageFlushBatch {
			flush()
		}

		select {
		case <-ticker.C:
			flush()
		default:
		}
	}
}

func alreadyExistsGroup(err error) bool {
	return err != nil && len(err.Error()) >= len("BUSYGROUP") && err.Error()[:9] == "BUSYGROUP"
}

func parseUsageRecord(msg redis.XMessage) usageRecord {
	get := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	parseI := func(k string) int64 {
		n, _ := strconv.ParseInt(get(k), 10, 64)
		return n
	}
	return usageRecord{
		msgID:            msg.ID,
		customerID:       get("customer_id"),
		boxID:            get("box_id"),
		model:            get("model"),
		promptTokens:     parseI("prompt_tokens"),
		completionTokens: parseI("completion_tokens"),
		requestID:        get("request_id"),
	}
}

// flushUsageBatch writes every record's usage_events row (skipping ones
// with no box_id, same as a freshly minted token whose box hasn't been
// recorded yet) and aggregates the batch per customer into a single
// usage_monthly increment each, then acks the whole batch.
func (p *Proxy) flushUsageBatch(ctx context.Context, batch []usageRecord) error {
	q := store.New(p.Pool)
	period := time.Now().UTC().Format("2006-01")

	totals := map[string]int64{}
	ids := make([]string, 0, len(batch))

	for _, rec := range batch {
		ids = append(ids, rec.msgID)

		customerID, err := uuid.Parse(rec.customerID)
		if err != nil {
			continue
		}
		totals[rec.customerID] += rec.promptTokens + rec.completionTokens

		if rec.boxID == "" {
			continue
		}
		boxID, err := uuid.Parse(rec.boxID)
		if err != nil {
			continue
		}
		if err := q.CreateUsageEvent(ctx, store.CreateUsageEventParams{
			CustomerID:       customerID,
			BoxID:            boxID,
			RequestID:        rec.effectiveRequestID(),
			PromptTokens:     rec.promptTokens,
			CompletionTokens: rec.completionTokens,
			Model:            rec.model,
		}); err != nil {
			p.Logger.Error("recording usage event", "error", err, "customer_id", rec.customerID)
		}
	}

	for customerIDStr, total := range totals {
		customerID, err := uuid.Parse(customerIDStr)
		if err != nil {
			continue
		}
		if err := q.IncrementUsageMonthly(ctx, customerID, period, total, store.TierTokenLimit["starter"]); err != nil {
			p.Logger.Error("incrementing usage_monthly", "error", err, "customer_id", customerIDStr)
			continue
		}
		p.bumpCachedLimit(ctx, customerIDStr, total)
	}

	if len(ids) > 0 {
		if err := p.Redis.XAck(ctx, p.Cfg.UsageStreamKey, p.Cfg.UsageConsumerGroup, ids...).Err(); err != nil {
			return fmt.Errorf("acking usage stream messages: %w", err)
		}
	}

	p.Logger.Info("flushed usage batch", "events", len(batch), "customers", len(totals))
	return nil
}

// bumpCachedLimit keeps the limit cache coherent with the write it just
// made, so a customer doesn't get a stale "allowed" read for up to
// limitCacheTTL after crossing their cap.
func (p *Proxy) bumpCachedLimit(ctx context.Context, customerID string, delta int64) {
	cacheKey := limitCachePrefix + customerID
	cached, err := p.Redis.Get(ctx, cacheKey).Result()
	if err != nil {
		return
	}
	var c cachedLimit
	if err := json.Unmarshal([]byte(cached), &c); err != nil {
		return
	}
	c.Used += delta
	body, err := json.Marshal(c)
	if err != nil {
		return
	}
	p.Redis.Set(ctx, cacheKey, body, redis.KeepTTL)
}
