package awsmock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records sent messages.
type SQS struct {
	mu   sync.Mutex
	Sent []*sqs.SendMessageInput
	// FailBodies makes SendMessage fail for messages whose body is listed.
	FailBodies map[string]bool
	Err        error
}

func (m *SQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if in.MessageBody != nil && m.FailBodies[*in.MessageBody] {
		return nil, fmt.Errorf("send refused")
	}
	m.Sent = append(m.Sent, in)
	id := fmt.Sprintf("msg-%d", len(m.Sent))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// CloudWatch records metric data.
type CloudWatch struct {
	mu     sync.Mutex
	Inputs []*cloudwatch.PutMetricDataInput
	Err    error
}

func (m *CloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Inputs = append(m.Inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Dimension returns the value of the named dimension on each recorded datum.
func (m *CloudWatch) Dimension(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, in := range m.Inputs {
		for _, d := range in.MetricData {
			for _, dim := range d.Dimensions {
				if dim.Name != nil && *dim.Name == name && dim.Value != nil {
					out = append(out, *dim.Value)
				}
			}
		}
	}
	return out
}
