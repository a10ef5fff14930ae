// Package queue publishes harvest lifecycle events to SQS for downstream
// consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"caneharvest/internal/config"
	"caneharvest/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// HarvestEvent is the message body of the harvest event stream.
type HarvestEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	RequestID  string         `json:"request_id,omitempty"`
	Harvest    *types.Harvest `json:"harvest"`
}

// HarvestPublisher sends HarvestEvents to the configured queue. With no queue
// URL it is disabled and every publish is a no-op.
type HarvestPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewHarvestPublisher creates a publisher for the queue in awsCfg.
func NewHarvestPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *HarvestPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HarvestPublisher{
		client:   client,
		queueURL: awsCfg.HarvestEventsQueue,
		logger:   logger,
		now:      time.Now,
	}
}

// Enabled reports whether events are actually sent.
func (p *HarvestPublisher) Enabled() bool {
	return p != nil && p.client != nil && p.queueURL != ""
}

// PublishCreated announces a newly stored harvest.
func (p *HarvestPublisher) PublishCreated(ctx context.Context, h *types.Harvest) error {
	if !p.Enabled() {
		return nil
	}

	event := HarvestEvent{
		EventID:    uuid.New().String(),
		EventType:  types.EventTypeHarvestCreated,
		OccurredAt: p.now().UTC(),
		RequestID:  types.GetRequestID(ctx),
		Harvest:    h,
	}
	return p.send(ctx, event)
}

func (p *HarvestPublisher) send(ctx context.Context, event HarvestEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal HarvestEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.AttrEventType: {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
		},
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send %s to %s: %w", event.EventType, p.queueURL, err)
	}

	attrs := []any{
		"queue_url", p.queueURL,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"harvest_id", event.Harvest.ID,
	}
	if out != nil && out.MessageId != nil {
		attrs = append(attrs, "message_id", *out.MessageId)
	}
	types.LoggerFromContext(ctx, p.logger).InfoContext(ctx, "harvest event sent", attrs...)

	return nil
}
