package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, in)
	id := "msg-1"
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

func TestPublisher_Publish(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	id, err := p.Publish(context.Background(), `{"notification_id":"n1"}`, map[string]string{
		"event":          "PAYMENT_CONFIRMED",
		"correlation_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected msg-1, got %s", id)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	if _, ok := in.MessageAttributes["correlation_id"]; ok {
		t.Fatalf("empty attributes must be skipped")
	}
	if got := *in.MessageAttributes["event"].StringValue; got != "PAYMENT_CONFIRMED" {
		t.Fatalf("event attribute mismatch: %s", got)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	p := NewPublisher(&mockSQS{err: errors.New("boom")}, "q")
	if _, err := p.Publish(context.Background(), "{}", nil); err == nil {
		t.Fatal("expected error")
	}
}

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetrics_Count(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetrics(cw, "LaundryPayflow")
	m.nowFunc = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := m.Count(context.Background(), "WebhookOutcome", map[string]string{"Outcome": "PAID"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cw.inputs) != 1 {
		t.Fatalf("expected one call, got %d", len(cw.inputs))
	}
	datum := cw.inputs[0].MetricData[0]
	if *datum.MetricName != "WebhookOutcome" || *datum.Value != 1 {
		t.Fatalf("unexpected datum: %+v", datum)
	}
	if len(datum.Dimensions) != 1 || *datum.Dimensions[0].Value != "PAID" {
		t.Fatalf("unexpected dimensions: %+v", datum.Dimensions)
	}

	var nilMetrics *Metrics
	if err := nilMetrics.Count(context.Background(), "x", nil); err != nil {
		t.Fatalf("nil metrics must be a no-op, got %v", err)
	}
}
