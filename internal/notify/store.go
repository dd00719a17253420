package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

// StatusIndex is the GSI (status, created_at) the relay polls.
const StatusIndex = "status-index"

var ErrNotPending = errors.New("notification is not pending")

// Store is the outbox table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// PutItem returns the transaction element that inserts n. Callers add it to
// the same TransactWriteItems call as the state change it reports.
func (s *Store) PutItem(n Notification) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal notification: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(notification_id)"),
		},
	}, nil
}

// ListPending returns up to limit pending rows, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int32) ([]Notification, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(StatusIndex),
		KeyConditionExpression:   awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": aws.StringValue(StatusPending),
		},
		ScanIndexForward: awsBool(true),
		Limit:            &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	var ns []Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &ns); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return ns, nil
}

// MarkDispatched moves a pending row to DISPATCHED. A row another relay already
// dispatched yields ErrNotPending.
func (s *Store) MarkDispatched(ctx context.Context, id string) error {
	now := aws.FormatTime(s.nowFunc())
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      key(id),
		UpdateExpression:         awsString("SET #s = :dispatched, dispatched_at = :now"),
		ConditionExpression:      awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dispatched": aws.StringValue(StatusDispatched),
			":pending":    aws.StringValue(StatusPending),
			":now":        aws.StringValue(now),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotPending
		}
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// IncrementAttempts increases the attempts counter by 1 after a failed publish
// and returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, id string) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(id),
		UpdateExpression:    awsString("SET attempts = if_not_exists(attempts, :zero) + :inc"),
		ConditionExpression: awsString("attribute_exists(notification_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": aws.NumberValue(0),
			":inc":  aws.NumberValue(1),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	v, ok := out.Attributes["attempts"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("increment attempts: no attempts in response")
	}
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return n, nil
}

// MarkFailed moves a pending row to FAILED so the relay stops polling it.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      key(id),
		UpdateExpression:         awsString("SET #s = :failed"),
		ConditionExpression:      awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":  aws.StringValue(StatusFailed),
			":pending": aws.StringValue(StatusPending),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotPending
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"notification_id": aws.StringValue(id)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
