package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
)

// OrderIndex is the GSI (order_id, created_at) over payment links.
const OrderIndex = "order-index"

// ErrConflict means a transaction condition failed: someone else moved the
// link or the order first.
var ErrConflict = errors.New("payment state changed concurrently")

// Store persists payment links and writes every link/order change in a single
// DynamoDB transaction.
type Store struct {
	client      aws.DynamoDBAPI
	linksTable  string
	ordersTable string
	outbox      *notify.Store
	nowFunc     func() time.Time
}

func NewStore(client aws.DynamoDBAPI, linksTable, ordersTable string, outbox *notify.Store) *Store {
	return &Store{
		client:      client,
		linksTable:  linksTable,
		ordersTable: ordersTable,
		outbox:      outbox,
		nowFunc:     time.Now,
	}
}

func linkKey(code int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"order_code": aws.NumberValue(code)}
}

// GetLink returns the link for an order code, or (nil, nil).
func (s *Store) GetLink(ctx context.Context, code int64) (*Link, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.linksTable,
		Key:            linkKey(code),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var l Link
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("unmarshal link: %w", err)
	}
	return &l, nil
}

// LatestLink returns the most recent link of an order, or (nil, nil).
func (s *Store) LatestLink(ctx context.Context, orderID string) (*Link, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.linksTable,
		IndexName:              awsString(OrderIndex),
		KeyConditionExpression: awsString("order_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": aws.StringValue(orderID),
		},
		ScanIndexForward: awsBool(false),
		Limit:            awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var l Link
	if err := attributevalue.UnmarshalMap(out.Items[0], &l); err != nil {
		return nil, fmt.Errorf("unmarshal link: %w", err)
	}
	// the index is eventually consistent; the base table has the final word
	return s.GetLink(ctx, l.OrderCode)
}

// HasPendingLink reports whether the order's latest attempt is still open.
func (s *Store) HasPendingLink(ctx context.Context, orderID string) (bool, error) {
	l, err := s.LatestLink(ctx, orderID)
	if err != nil {
		return false, err
	}
	return l != nil && l.Status == LinkPending, nil
}

// CreateLink stores a new PENDING link and points the order at it. The order
// must still await a QR payment and reference prevCode (nil for a first
// attempt), and the previous link must be CANCELLED or FAILED.
func (s *Store) CreateLink(ctx context.Context, link Link, prevCode *int64) error {
	now := s.nowFunc()
	link.Status = LinkPending
	link.CreatedAt = aws.At(now)
	link.UpdatedAt = link.CreatedAt

	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}

	orderCond := "#s = :required AND payment_method = :qr AND payment_status <> :paid AND attribute_not_exists(order_code)"
	values := map[string]types.AttributeValue{
		":code":     aws.NumberValue(link.OrderCode),
		":required": aws.StringValue(string(orders.StatusPaymentRequired)),
		":qr":       aws.StringValue(string(orders.MethodQRCode)),
		":paid":     aws.StringValue(string(orders.PaymentCompleted)),
		":ua":       aws.StringValue(aws.FormatTime(now)),
	}
	if prevCode != nil {
		orderCond = "#s = :required AND payment_method = :qr AND payment_status <> :paid AND order_code = :prev"
		values[":prev"] = aws.NumberValue(*prevCode)
	}

	txItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.linksTable,
				Item:                item,
				ConditionExpression: awsString("attribute_not_exists(order_code)"),
			},
		},
		{
			Update: &types.Update{
				TableName:                 &s.ordersTable,
				Key:                       orders.Key(link.OrderID),
				UpdateExpression:          awsString("SET order_code = :code, updated_at = :ua"),
				ConditionExpression:       awsString(orderCond),
				ExpressionAttributeNames:  map[string]string{"#s": "status"},
				ExpressionAttributeValues: values,
			},
		},
	}
	if prevCode != nil {
		txItems = append(txItems, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                &s.linksTable,
				Key:                      linkKey(*prevCode),
				ConditionExpression:      awsString("(#s = :cancelled OR #s = :failed)"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":cancelled": aws.StringValue(string(LinkCancelled)),
					":failed":    aws.StringValue(string(LinkFailed)),
				},
			},
		})
	}
	return s.transact(ctx, txItems)
}

// ApplySuccess marks the link PAID and the order paid, moving its status to
// st.NextStatus, together with the outbox rows. An order already paid by cash
// keeps its completion time.
func (s *Store) ApplySuccess(ctx context.Context, st Settlement) error {
	now := aws.FormatTime(st.At)
	txItems := []types.TransactWriteItem{s.linkTransition(st.Link.OrderCode, LinkPaid, now)}

	if !st.Order.Paid() {
		txItems = append(txItems, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           &s.ordersTable,
				Key:                 orders.Key(st.Order.OrderID),
				UpdateExpression:    awsString("SET payment_status = :paid, payment_completed_at = :now, #s = :next, updated_at = :now"),
				ConditionExpression: awsString("#s = :observed AND order_code = :code AND payment_status <> :paid"),
				ExpressionAttributeNames: map[string]string{
					"#s": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":paid":     aws.StringValue(string(orders.PaymentCompleted)),
					":now":      aws.StringValue(now),
					":next":     aws.StringValue(string(st.NextStatus)),
					":observed": aws.StringValue(string(st.Order.Status)),
					":code":     aws.NumberValue(st.Link.OrderCode),
				},
			},
		})
	}
	return s.settle(ctx, txItems, st.Notifications)
}

// ApplyFailure marks the link FAILED and, unless money already arrived some
// other way, the order's payment FAILED. Order status is left alone.
func (s *Store) ApplyFailure(ctx context.Context, st Settlement) error {
	now := aws.FormatTime(st.At)
	txItems := []types.TransactWriteItem{s.linkTransition(st.Link.OrderCode, LinkFailed, now)}

	if !st.Order.Paid() {
		txItems = append(txItems, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           &s.ordersTable,
				Key:                 orders.Key(st.Order.OrderID),
				UpdateExpression:    awsString("SET payment_status = :failed, updated_at = :now"),
				ConditionExpression: awsString("order_code = :code AND payment_status <> :paid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":failed": aws.StringValue(string(orders.PaymentFailed)),
					":paid":   aws.StringValue(string(orders.PaymentCompleted)),
					":now":    aws.StringValue(now),
					":code":   aws.NumberValue(st.Link.OrderCode),
				},
			},
		})
	}
	return s.settle(ctx, txItems, st.Notifications)
}

// CancelLink moves a PENDING link to CANCELLED. Orders are not touched.
func (s *Store) CancelLink(ctx context.Context, code int64) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.linksTable,
		Key:                      linkKey(code),
		UpdateExpression:         awsString("SET #s = :cancelled, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cancelled": aws.StringValue(string(LinkCancelled)),
			":pending":   aws.StringValue(string(LinkPending)),
			":ua":        aws.StringValue(aws.FormatTime(s.nowFunc())),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return fmt.Errorf("cancel link: %w", err)
	}
	return nil
}

func (s *Store) linkTransition(code int64, to LinkStatus, now string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                &s.linksTable,
			Key:                      linkKey(code),
			UpdateExpression:         awsString("SET #s = :to, updated_at = :now"),
			ConditionExpression:      awsString("#s = :pending"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":to":      aws.StringValue(string(to)),
				":pending": aws.StringValue(string(LinkPending)),
				":now":     aws.StringValue(now),
			},
		},
	}
}

func (s *Store) settle(ctx context.Context, txItems []types.TransactWriteItem, ns []notify.Notification) error {
	for _, n := range ns {
		put, err := s.outbox.PutItem(n)
		if err != nil {
			return err
		}
		txItems = append(txItems, put)
	}
	return s.transact(ctx, txItems)
}

func (s *Store) transact(ctx context.Context, txItems []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: txItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func awsInt32(n int32) *int32 { return &n }
