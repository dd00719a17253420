// Package payments drives QR payment attempts: link creation, webhook
// reconciliation, cancellation and status lookups.
package payments

import (
	"time"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payos"
)

type LinkStatus string

const (
	LinkPending   LinkStatus = "PENDING"
	LinkPaid      LinkStatus = "PAID"
	LinkCancelled LinkStatus = "CANCELLED"
	LinkFailed    LinkStatus = "FAILED"
)

// Terminal statuses never change again.
func (s LinkStatus) Terminal() bool { return s != LinkPending }

// Link is one gateway checkout attempt for an order, keyed by its order code.
type Link struct {
	OrderCode     int64         `dynamodbav:"order_code"` // PK
	OrderID       string        `dynamodbav:"order_id"`   // order-index hash key
	PaymentLinkID string        `dynamodbav:"payment_link_id"`
	CheckoutURL   string        `dynamodbav:"checkout_url"`
	Amount        int64         `dynamodbav:"amount"`
	Status        LinkStatus    `dynamodbav:"status"`
	CreatedAt     aws.Timestamp `dynamodbav:"created_at"` // order-index range key
	UpdatedAt     aws.Timestamp `dynamodbav:"updated_at"`
}

// Outcome is what a webhook delivery did.
type Outcome string

const (
	OutcomePaid               Outcome = "PAID"
	OutcomeFailed             Outcome = "FAILED"
	OutcomeAlreadyApplied     Outcome = "ALREADY_APPLIED"
	OutcomeConflictingDropped Outcome = "CONFLICTING_DROPPED"
	OutcomePremiumActivated   Outcome = "PREMIUM_ACTIVATED"
	OutcomePremiumNotPaid     Outcome = "PREMIUM_NOT_PAID"
	OutcomeInvalidSignature   Outcome = "INVALID_SIGNATURE"
	OutcomeUnknownOrderCode   Outcome = "UNKNOWN_ORDER_CODE"
	OutcomeError              Outcome = "ERROR"
)

// Noop reports whether the delivery left state untouched on purpose.
func (o Outcome) Noop() bool {
	return o == OutcomeAlreadyApplied || o == OutcomeConflictingDropped
}

type ReconcileResult struct {
	Outcome   Outcome `json:"outcome"`
	OrderCode int64   `json:"orderCode"`
	OrderID   string  `json:"orderId,omitempty"`
}

type Checkout struct {
	CheckoutURL string `json:"checkoutUrl"`
	OrderCode   int64  `json:"orderCode"`
	Reused      bool   `json:"reused"`
}

// StatusView is the payment status shown to customers and vendors.
type StatusView struct {
	OrderID       string                `json:"orderId"`
	OrderStatus   orders.Status         `json:"orderStatus"`
	PaymentStatus orders.PaymentStatus  `json:"paymentStatus"`
	PaymentMethod orders.PaymentMethod  `json:"paymentMethod"`
	OrderCode     *int64                `json:"orderCode,omitempty"`
	LinkStatus    LinkStatus            `json:"linkStatus,omitempty"`
	CheckoutURL   string                `json:"checkoutUrl,omitempty"`
	GatewayStatus *payos.StatusSnapshot `json:"gatewayStatus,omitempty"`
	Degraded      bool                  `json:"degraded"`
}

// Settlement is one verified outcome ready to be written: the link as read,
// the order as observed, and the rows to add to the outbox.
type Settlement struct {
	Link          Link
	Order         orders.Order
	NextStatus    orders.Status
	Notifications []notify.Notification
	At            time.Time
}
