package payments

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/aws/awsmock"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/ordercode"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payos"
)

const (
	linksTable  = "payment_links"
	ordersTable = "orders"
	outboxTable = "notifications"
	checksumKey = "test-checksum-key"
)

var fixedNow = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

type fakeGateway struct {
	mu        sync.Mutex
	CreateErr error
	StatusErr error
	CancelErr error
	Created   []payos.PaymentRequest
	Cancelled []int64
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req payos.PaymentRequest) (payos.CheckoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return payos.CheckoutResult{}, g.CreateErr
	}
	g.Created = append(g.Created, req)
	return payos.CheckoutResult{
		PaymentLinkID: fmt.Sprintf("pl-%d", req.OrderCode),
		CheckoutURL:   fmt.Sprintf("https://pay.payos.vn/web/%d", req.OrderCode),
		Status:        "PENDING",
		OrderCode:     req.OrderCode,
		Amount:        req.Amount,
	}, nil
}

func (g *fakeGateway) VerifyWebhook(raw []byte) (payos.WebhookData, error) {
	return payos.VerifyWebhook(checksumKey, raw)
}

func (g *fakeGateway) GetPaymentStatus(ctx context.Context, orderCode int64) (payos.StatusSnapshot, error) {
	if g.StatusErr != nil {
		return payos.StatusSnapshot{}, g.StatusErr
	}
	return payos.StatusSnapshot{OrderCode: orderCode, Status: "PENDING"}, nil
}

func (g *fakeGateway) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Cancelled = append(g.Cancelled, orderCode)
	return g.CancelErr
}

type fakePremium struct {
	calls   []payos.WebhookData
	applied bool
	err     error
}

func (p *fakePremium) Activate(ctx context.Context, data payos.WebhookData) (bool, error) {
	p.calls = append(p.calls, data)
	return p.applied, p.err
}

type env struct {
	db      *awsmock.DynamoDB
	cw      *awsmock.CloudWatch
	gw      *fakeGateway
	premium *fakePremium
	orders  *orders.Store
	store   *Store
	codes   *ordercode.Generator
	svc     *Service
}

func quiet() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := awsmock.NewDynamoDB(map[string][]string{
		ordersTable: {"order_id"},
		linksTable:  {"order_code"},
		outboxTable: {"notification_id"},
	}).WithIndex(OrderIndex, "created_at").WithIndex(notify.StatusIndex, "created_at")

	// the counter lives in its own fake so store tests can count writes on db
	codes := ordercode.NewGenerator(ordercode.NewDynamoSequence(
		awsmock.NewDynamoDB(map[string][]string{"counters": {"counter_name"}}), "counters", ordercode.CounterName))

	e := &env{
		db:      db,
		cw:      &awsmock.CloudWatch{},
		gw:      &fakeGateway{},
		premium: &fakePremium{applied: true},
		orders:  orders.NewStore(db, ordersTable),
		codes:   codes,
	}
	e.store = NewStore(db, linksTable, ordersTable, notify.NewStore(db, outboxTable))
	e.store.nowFunc = func() time.Time { return fixedNow }
	e.svc = NewService(e.orders, e.store, e.gw, codes, e.premium, aws.NewMetrics(e.cw, "Test"),
		Options{ReturnURL: "https://app.example/return", CancelURL: "https://app.example/cancel"}, quiet())
	e.svc.nowFunc = func() time.Time { return fixedNow }
	return e
}

// seedQROrder stores the reference order: 100000 service + 20000 delivery,
// awaiting a QR payment.
func (e *env) seedQROrder(t *testing.T, id string) orders.Order {
	t.Helper()
	o := orders.Order{
		OrderID:       id,
		CustomerID:    "cust-1",
		VendorID:      "vendor-1",
		ServicePrice:  100000,
		DeliveryFee:   20000,
		Items:         []orders.Item{{Name: "Giặt sấy", Quantity: 2, UnitPrice: 50000}},
		PaymentMethod: orders.MethodQRCode,
		Status:        orders.StatusPaymentRequired,
		PaymentStatus: orders.PaymentPending,
		CreatedAt:     aws.At(fixedNow.Add(-2 * time.Hour)),
		UpdatedAt:     aws.At(fixedNow.Add(-2 * time.Hour)),
	}
	e.putOrder(t, o)
	return o
}

func (e *env) putOrder(t *testing.T, o orders.Order) {
	t.Helper()
	item, err := attributevalue.MarshalMap(o)
	require.NoError(t, err)
	e.db.Seed(ordersTable, item)
}

func (e *env) order(t *testing.T, id string) *orders.Order {
	t.Helper()
	o, err := e.orders.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (e *env) link(t *testing.T, code int64) *Link {
	t.Helper()
	l, err := e.store.GetLink(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func (e *env) outbox(t *testing.T) []notify.Notification {
	t.Helper()
	var out []notify.Notification
	for _, it := range e.db.Items(outboxTable) {
		var n notify.Notification
		require.NoError(t, attributevalue.UnmarshalMap(it, &n))
		out = append(out, n)
	}
	return out
}

func webhook(t *testing.T, code, amount int64, gatewayCode string) []byte {
	t.Helper()
	raw, err := payos.BuildWebhook(checksumKey, payos.WebhookData{
		OrderCode:           code,
		Amount:              amount,
		Description:         fmt.Sprintf("DH %d", code),
		AccountNumber:       "12345678",
		Reference:           "FT2501100001",
		TransactionDateTime: "2025-01-10 09:31:00",
		Currency:            "VND",
		PaymentLinkID:       fmt.Sprintf("pl-%d", code),
		Code:                gatewayCode,
		Desc:                "success",
	})
	require.NoError(t, err)
	return raw
}
