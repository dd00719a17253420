package orders

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

// VendorPaidIndex is the sparse GSI (vendor_id, payment_completed_at) holding
// only paid orders.
const VendorPaidIndex = "vendor-paid-index"

var (
	// ErrStatusMismatch means a conditional write found the order in another state.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	ErrAlreadyExists  = errors.New("order already exists")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Table returns the orders table name, for callers composing transactions.
func (s *Store) Table() string { return s.tableName }

// Key builds the primary key of an order.
func Key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"order_id": aws.StringValue(orderID)}
}

// Put creates an order. An existing order_id yields ErrAlreadyExists.
func (s *Store) Put(ctx context.Context, o Order) error {
	now := aws.At(s.nowFunc())
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            Key(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus Status) error {
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      Key(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      aws.StringValue(string(newStatus)),
			":expected": aws.StringValue(string(expectedStatus)),
			":ua":       aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	}
	return s.update(ctx, input)
}

// CompleteCashPayment records cash collected by the vendor: status, payment
// status and completion time move together, and only for an unpaid COD order
// still in expectedStatus.
func (s *Store) CompleteCashPayment(ctx context.Context, orderID string, expectedStatus Status) error {
	now := aws.FormatTime(s.nowFunc())
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 Key(orderID),
		UpdateExpression:    awsString("SET #s = :completed, payment_status = :paid, payment_completed_at = :now, updated_at = :now"),
		ConditionExpression: awsString("#s = :expected AND payment_method = :cod AND payment_status <> :paid"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": aws.StringValue(string(StatusCompleted)),
			":paid":      aws.StringValue(string(PaymentCompleted)),
			":expected":  aws.StringValue(string(expectedStatus)),
			":cod":       aws.StringValue(string(MethodCOD)),
			":now":       aws.StringValue(now),
		},
	}
	return s.update(ctx, input)
}

// SetPaymentMethod changes the method of an order that is neither paid nor
// closed.
func (s *Store) SetPaymentMethod(ctx context.Context, orderID string, method PaymentMethod) error {
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 Key(orderID),
		UpdateExpression:    awsString("SET payment_method = :m, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_id) AND payment_status <> :paid AND #s <> :done AND #s <> :cancelled"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":         aws.StringValue(string(method)),
			":paid":      aws.StringValue(string(PaymentCompleted)),
			":done":      aws.StringValue(string(StatusCompleted)),
			":cancelled": aws.StringValue(string(StatusCancelled)),
			":ua":        aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	}
	return s.update(ctx, input)
}

// AttachReview links a review to a completed order exactly once.
func (s *Store) AttachReview(ctx context.Context, orderID, reviewID string) error {
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 Key(orderID),
		UpdateExpression:    awsString("SET review_id = :r, updated_at = :ua"),
		ConditionExpression: awsString("attribute_not_exists(review_id) AND #s = :done"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r":    aws.StringValue(reviewID),
			":done": aws.StringValue(string(StatusCompleted)),
			":ua":   aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	}
	return s.update(ctx, input)
}

// ListPaidByVendor returns the vendor's orders whose payment completed in
// [from, to). It pages through the sparse vendor-paid-index.
func (s *Store) ListPaidByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]Order, error) {
	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(VendorPaidIndex),
			KeyConditionExpression: awsString("vendor_id = :v AND payment_completed_at BETWEEN :from AND :to"),
			FilterExpression:       awsString("payment_status = :paid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v":    aws.StringValue(vendorID),
				":from": aws.StringValue(aws.FormatTime(from)),
				":to":   aws.StringValue(aws.FormatTime(to.Add(-time.Nanosecond))),
				":paid": aws.StringValue(string(PaymentCompleted)),
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query paid orders: %w", err)
		}
		page := make([]Order, 0, len(out.Items))
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal paid orders: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *Store) update(ctx context.Context, input *dyn.UpdateItemInput) error {
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var sc *types.ConditionalCheckFailedException
	return errors.As(err, &sc)
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
