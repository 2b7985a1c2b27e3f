package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"meeting-rag-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer appends messages to Redis streams.
type Producer struct {
	client *redis.Client
	maxLen int64
}

func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish appends msg to stream and returns the stream entry id.
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishIndexTrigger enqueues an indexing job; the request and trace ids travel as metadata.
func (p *Producer) PublishIndexTrigger(ctx context.Context, trigger *IndexTrigger) (string, error) {
	if err := trigger.Validate(); err != nil {
		return "", err
	}
	msg, err := NewIndexMessage(ctx, trigger)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamMeetingIndex, msg)
}

// NewIndexMessage wraps trigger in a Message with a fresh id.
func NewIndexMessage(ctx context.Context, trigger *IndexTrigger) (*Message, error) {
	msg, err := NewMessage(uuid.NewString(), TypeIndexMeeting, trigger.MeetingID, trigger)
	if err != nil {
		return nil, err
	}
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}
	return msg, nil
}
