package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	lease     time.Duration // IN_PROGRESS older than this is treated as abandoned
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
// lease: how long a claim holds before another worker may take it over
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, lease time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		lease:     lease,
		nowFunc:   time.Now,
	}
}

// ErrConditionFailed indicates the record was not in the status the update required.
var ErrConditionFailed = errors.New("conditional check failed")

// ErrClaimHeld is returned by Claim while another worker's lease is live.
var ErrClaimHeld = errors.New("claim held by another worker")

func isConditionFailed(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"idempotency_key": aws.StringValue(k)}
}

// CreateIfNotExists creates an idempotency record with status IN_PROGRESS if the key does not exist.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
// Returns (created=false, err) on other errors.
func (s *Store) CreateIfNotExists(ctx context.Context, k, subject string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: k,
		Status:         StatusInProgress,
		Subject:        subject,
		Attempts:       1,
		CreatedAt:      aws.At(now),
		UpdatedAt:      aws.At(now),
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Reclaim takes a FAILED record, or an IN_PROGRESS one whose lease has run
// out, back to IN_PROGRESS for another attempt.
// Returns (false, nil) when the record is DONE and (false, ErrClaimHeld) while
// another worker's lease is live.
func (s *Store) Reclaim(ctx context.Context, k string) (bool, error) {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      key(k),
		UpdateExpression:         awsString("SET #s = :inp, attempts = if_not_exists(attempts, :zero) + :one, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :failed OR (#s = :inp AND updated_at <= :stale)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inp":    aws.StringValue(StatusInProgress),
			":failed": aws.StringValue(StatusFailed),
			":zero":   aws.NumberValue(0),
			":one":    aws.NumberValue(1),
			":ua":     aws.StringValue(aws.FormatTime(now)),
			":stale":  aws.StringValue(aws.FormatTime(now.Add(-s.lease))),
		},
	})
	if err != nil {
		if !isConditionFailed(err) {
			return false, fmt.Errorf("update item (reclaim): %w", err)
		}
		rec, gerr := s.Get(ctx, k)
		if gerr != nil {
			return false, gerr
		}
		if rec != nil && rec.Status == StatusInProgress {
			return false, ErrClaimHeld
		}
		return false, nil
	}
	return true, nil
}

// Claim is CreateIfNotExists followed by Reclaim for a failed or abandoned key.
func (s *Store) Claim(ctx context.Context, k, subject string) (bool, error) {
	created, err := s.CreateIfNotExists(ctx, k, subject)
	if err != nil || created {
		return created, err
	}
	return s.Reclaim(ctx, k)
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, k string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            key(k),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone moves an IN_PROGRESS record to DONE.
func (s *Store) MarkDone(ctx context.Context, k string) error {
	return s.finish(ctx, k, StatusDone, "")
}

// MarkFailed moves an IN_PROGRESS record to FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, k, note string) error {
	return s.finish(ctx, k, StatusFailed, note)
}

func (s *Store) finish(ctx context.Context, k, status, note string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      key(k),
		UpdateExpression:         awsString("SET #s = :to, note = :n, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :inp"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":  aws.StringValue(status),
			":inp": aws.StringValue(StatusInProgress),
			":n":   aws.StringValue(note),
			":ua":  aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (mark %s): %w", status, err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
