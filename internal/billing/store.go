package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

var (
	// ErrBillExists is returned when a bill for the vendor and period is already stored.
	ErrBillExists = errors.New("bill already exists")
	// ErrNotPending is returned when a bill is not in PENDING.
	ErrNotPending = errors.New("bill is not pending")
)

// Store keeps bills keyed by vendor_id + period.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

func billKey(vendorID, period string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"vendor_id": aws.StringValue(vendorID),
		"period":    aws.StringValue(period),
	}
}

// Create stores b once; a second call for the same vendor and period fails
// with ErrBillExists.
func (s *Store) Create(ctx context.Context, b Bill) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal bill: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(vendor_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrBillExists
		}
		return fmt.Errorf("put bill: %w", err)
	}
	return nil
}

// Get returns the bill or (nil, nil).
func (s *Store) Get(ctx context.Context, vendorID, period string) (*Bill, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            billKey(vendorID, period),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var b Bill
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bill: %w", err)
	}
	return &b, nil
}

// List returns the vendor's bills with fromPeriod <= period <= toPeriod,
// newest first.
func (s *Store) List(ctx context.Context, vendorID, fromPeriod, toPeriod string) ([]Bill, error) {
	var (
		result []Bill
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                &s.tableName,
			KeyConditionExpression:   awsString("vendor_id = :v AND #p BETWEEN :from AND :to"),
			ExpressionAttributeNames: map[string]string{"#p": "period"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v":    aws.StringValue(vendorID),
				":from": aws.StringValue(fromPeriod),
				":to":   aws.StringValue(toPeriod),
			},
			ScanIndexForward:  awsBool(false),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query bills: %w", err)
		}
		page := make([]Bill, 0, len(out.Items))
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal bills: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		start = out.LastEvaluatedKey
	}
}

// MarkPaid moves a PENDING bill to PAID.
func (s *Store) MarkPaid(ctx context.Context, vendorID, period string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      billKey(vendorID, period),
		UpdateExpression:         awsString("SET #s = :paid, paid_at = :now"),
		ConditionExpression:      awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":    aws.StringValue(string(BillPaid)),
			":pending": aws.StringValue(string(BillPending)),
			":now":     aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotPending
		}
		return fmt.Errorf("mark bill paid: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
