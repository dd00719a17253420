package idempotency

import "github.com/imrishuroy/laundry-payflow/internal/aws"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. Subject is
// what the key protects, e.g. a notification id.
type Record struct {
	IdempotencyKey string        `dynamodbav:"idempotency_key"` // PK
	Status         string        `dynamodbav:"status"`
	Subject        string        `dynamodbav:"subject,omitempty"`
	Attempts       int           `dynamodbav:"attempts"`
	CreatedAt      aws.Timestamp `dynamodbav:"created_at"`
	UpdatedAt      aws.Timestamp `dynamodbav:"updated_at"`
	ExpiresAt      int64         `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string        `dynamodbav:"note,omitempty"`
}
