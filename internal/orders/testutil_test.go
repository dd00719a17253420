package orders

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/aws/awsmock"
)

const testTable = "orders"

var fixedNow = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func newTestStore() (*Store, *awsmock.DynamoDB) {
	db := awsmock.NewDynamoDB(map[string][]string{testTable: {"order_id"}})
	s := NewStore(db, testTable)
	s.nowFunc = func() time.Time { return fixedNow }
	return s, db
}

func seedOrder(t *testing.T, db *awsmock.DynamoDB, o Order) {
	t.Helper()
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = aws.At(fixedNow.Add(-time.Hour))
		o.UpdatedAt = o.CreatedAt
	}
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	db.Seed(testTable, item)
}

func mustGet(t *testing.T, s *Store, id string) *Order {
	t.Helper()
	o, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	if o == nil {
		t.Fatalf("order %s missing", id)
	}
	return o
}
