package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"meeting-rag-api/pkg/logger"
	"meeting-rag-api/pkg/metrics"
)

// MessageHandler processes one message. A returned error leaves the message
// pending so it is redelivered after backoff.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer reads one stream through a consumer group, retries failed
// messages with backoff, and dead-letters them after RetryLimit deliveries.
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   max(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start creates the consumer group if needed and consumes in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if running {
		<-c.doneCh
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.doneCh)

	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)

	lastClaim := time.Now().Add(-c.claimInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			log.Info("consumer stopped")
			return
		default:
		}

		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "failed to read from stream", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// decodeMessage extracts the envelope from a stream entry.
func decodeMessage(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream entry %s: %w", xmsg.ID, err)
	}
	return &msg, nil
}

func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decodeMessage(xmsg)
	if err != nil {
		// poison entries can never succeed
		logger.Error(ctx, "dropping undecodable message", err, "message_id", xmsg.ID)
		c.record("invalid")
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = logger.WithContext(ctx, logger.MessageIDKey, msg.ID)
	if msg.MeetingID != "" {
		ctx = logger.WithContext(ctx, logger.MeetingIDKey, msg.MeetingID)
	}
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("meeting_id", msg.MeetingID),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.record("unhandled")
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "handler failed", err)
		c.record("error")
		c.handleFailure(ctx, xmsg.ID, msg, err)
		return
	}

	c.record("success")
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) record(status string) {
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), status).Inc()
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

func (c *Consumer) handleFailure(ctx context.Context, streamID string, msg *Message, err error) {
	retryCount := c.getRetryCount(ctx, streamID)

	if retryCount >= c.retryLimit {
		if dlqErr := c.moveToDLQ(ctx, msg, err); dlqErr != nil {
			// leave pending; processDuePending dead-letters it again
			return
		}
		logger.Warn(ctx, "message moved to DLQ after max retries", "retry_count", retryCount)
		c.ack(ctx, streamID)
		return
	}
	logger.Info(ctx, "message left pending for retry",
		"retry_count", retryCount,
		"next_attempt_after", c.backoff.CalculateBackoff(retryCount).String(),
	)
}

// getRetryCount returns the delivery count XPENDING reports for one entry.
func (c *Consumer) getRetryCount(ctx context.Context, streamID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  streamID,
		End:    streamID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// DeadLetter is the entry written to the DLQ stream.
type DeadLetter struct {
	OriginalStream string   `json:"original_stream"`
	Message        *Message `json:"data"`
	Error          string   `json:"error"`
	FailedAt       int64    `json:"failed_at"`
}

// moveToDLQ writes msg to the DLQ stream. The caller acks the original only on success.
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, cause error) error {
	dlqStream := c.stream.DLQStream()

	data, err := json.Marshal(&DeadLetter{
		OriginalStream: string(c.stream),
		Message:        msg,
		Error:          cause.Error(),
		FailedAt:       time.Now().Unix(),
	})
	if err != nil {
		logger.Error(ctx, "failed to marshal dead letter", err)
		return err
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]any{"data": string(data)},
	}).Err(); err != nil {
		logger.Error(ctx, "failed to write dead letter", err, "stream", dlqStream)
		return err
	}
	metrics.RedisStreamDLQ.WithLabelValues(string(c.stream)).Inc()
	return nil
}

type pendingAction int

const (
	pendingSkip pendingAction = iota
	pendingRetry
	pendingDeadLetter
)

// classifyPending decides what to do with a pending entry given its idle time
// and delivery count. minIdle is the idle time required before any action.
func (c *Consumer) classifyPending(p redis.XPendingExt, minIdle time.Duration) pendingAction {
	if p.Idle < minIdle {
		return pendingSkip
	}
	if int(p.RetryCount) >= c.retryLimit {
		return pendingDeadLetter
	}
	if p.Idle < c.backoff.CalculateBackoff(int(p.RetryCount)) {
		return pendingSkip
	}
	return pendingRetry
}

func (c *Consumer) pending(ctx context.Context, consumer string) []redis.XPendingExt {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Error(ctx, "failed to query pending messages", err)
		}
		return nil
	}
	return pending
}

func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration) []redis.XMessage {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.Error(ctx, "failed to claim pending message", err, "message_id", id)
		return nil
	}
	return claimed
}

func (c *Consumer) deadLetterClaimed(ctx context.Context, claimed []redis.XMessage) {
	for _, xmsg := range claimed {
		if msg, err := decodeMessage(xmsg); err == nil {
			if err := c.moveToDLQ(ctx, msg, fmt.Errorf("message exceeded max retries")); err != nil {
				continue
			}
		}
		c.ack(ctx, xmsg.ID)
	}
}

// processDuePending redelivers this consumer's failed messages once their backoff has elapsed.
func (c *Consumer) processDuePending(ctx context.Context) {
	for _, p := range c.pending(ctx, c.consumerName) {
		switch c.classifyPending(p, 0) {
		case pendingDeadLetter:
			c.deadLetterClaimed(ctx, c.claim(ctx, p.ID, 0))
		case pendingRetry:
			for _, xmsg := range c.claim(ctx, p.ID, c.backoff.CalculateBackoff(int(p.RetryCount))) {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// reclaimStale takes over messages abandoned by other consumers.
func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}
	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.consumerName {
			continue
		}
		switch c.classifyPending(p, c.reclaimIdle) {
		case pendingDeadLetter:
			c.deadLetterClaimed(ctx, c.claim(ctx, p.ID, c.reclaimIdle))
		case pendingRetry:
			for _, xmsg := range c.claim(ctx, p.ID, c.reclaimIdle) {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// MonitorDLQ warns once a minute while the DLQ holds more than alertThreshold entries.
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlqStream := c.stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlqStream).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages", "stream", dlqStream, "count", n)
			}
		}
	}
}
