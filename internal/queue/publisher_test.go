package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"caneharvest/internal/config"
	"caneharvest/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/harvest-events"

func newTestPublisher(mock *mockSQSSender) *HarvestPublisher {
	p := NewHarvestPublisher(mock, config.AWSConfig{HarvestEventsQueue: testQueueURL}, slog.Default())
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600)) }
	return p
}

func testHarvest() *types.Harvest {
	return &types.Harvest{
		ID:             "hv_123",
		HarvestRecord:  types.HarvestRecord{Area: 10, Production: 500, LossPercentage: 5},
		DerivedMetrics: types.DerivedMetrics{LostTonnage: 25, NetProduction: 475},
	}
}

// --- Tests ---

func TestPublishCreated_SendsEvent(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	ctx := types.WithRequestID(context.Background(), "req-9")
	if err := pub.PublishCreated(ctx, testHarvest()); err != nil {
		t.Fatalf("PublishCreated returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]

	if *call.QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *call.QueueUrl)
	}

	attr, ok := call.MessageAttributes[types.AttrEventType]
	if !ok {
		t.Fatal("expected event_type message attribute")
	}
	if *attr.DataType != "String" || *attr.StringValue != "harvest.created" {
		t.Errorf("unexpected event_type attribute: %s=%s", *attr.DataType, *attr.StringValue)
	}

	var event HarvestEvent
	if err := json.Unmarshal([]byte(*call.MessageBody), &event); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if event.EventType != types.EventTypeHarvestCreated {
		t.Errorf("event_type = %q", event.EventType)
	}
	if event.EventID == "" {
		t.Error("expected a generated event_id")
	}
	if event.RequestID != "req-9" {
		t.Errorf("request_id = %q, want req-9", event.RequestID)
	}
	if !event.OccurredAt.Equal(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)) || event.OccurredAt.Location() != time.UTC {
		t.Errorf("occurred_at = %v, want 2024-03-01T15:00:00Z", event.OccurredAt)
	}
	if event.Harvest == nil || event.Harvest.ID != "hv_123" || event.Harvest.LostTonnage != 25 {
		t.Errorf("harvest payload = %+v", event.Harvest)
	}
}

func TestPublishCreated_BodyIsFlatHarvest(t *testing.T) {
	mock := &mockSQSSender{}
	if err := newTestPublisher(mock).PublishCreated(context.Background(), testHarvest()); err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &raw); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}
	var harvest map[string]any
	if err := json.Unmarshal(raw["harvest"], &harvest); err != nil {
		t.Fatalf("failed to unmarshal harvest: %v", err)
	}
	for _, key := range []string{"id", "area", "lost_tonnage", "alert"} {
		if _, ok := harvest[key]; !ok {
			t.Errorf("harvest payload missing %q", key)
		}
	}
}

func TestPublishCreated_UniqueEventIDs(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	for i := 0; i < 2; i++ {
		if err := pub.PublishCreated(context.Background(), testHarvest()); err != nil {
			t.Fatal(err)
		}
	}

	var a, b HarvestEvent
	_ = json.Unmarshal([]byte(*mock.calls[0].MessageBody), &a)
	_ = json.Unmarshal([]byte(*mock.calls[1].MessageBody), &b)
	if a.EventID == b.EventID {
		t.Errorf("event IDs should differ, both %q", a.EventID)
	}
}

func TestPublishCreated_SQSError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("throttled")}

	err := newTestPublisher(mock).PublishCreated(context.Background(), testHarvest())

	if err == nil {
		t.Fatal("expected error from SQS failure")
	}
	if !strings.Contains(err.Error(), "throttled") || !strings.Contains(err.Error(), testQueueURL) {
		t.Errorf("error should name the cause and queue, got %v", err)
	}
}

func TestPublishCreated_DisabledWithoutQueue(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewHarvestPublisher(mock, config.AWSConfig{}, nil)

	if pub.Enabled() {
		t.Error("publisher without queue URL should be disabled")
	}
	if err := pub.PublishCreated(context.Background(), testHarvest()); err != nil {
		t.Errorf("disabled publisher returned error: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("disabled publisher sent %d messages", len(mock.calls))
	}
}

func TestPublishCreated_NilPublisher(t *testing.T) {
	var pub *HarvestPublisher
	if err := pub.PublishCreated(context.Background(), testHarvest()); err != nil {
		t.Errorf("nil publisher returned error: %v", err)
	}
}
