// Package notify implements the notification outbox: rows written alongside
// payment state changes, a relay that pushes them to SQS, and the Sender used
// by the delivery worker.
package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

type Event string

const (
	EventPaymentConfirmed Event = "PAYMENT_CONFIRMED"
	EventPaymentReceived  Event = "PAYMENT_RECEIVED"
	EventPaymentFailed    Event = "PAYMENT_FAILED"
	EventPremiumActivated Event = "PREMIUM_ACTIVATED"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleVendor   Role = "VENDOR"
)

const (
	StatusPending    = "PENDING"
	StatusDispatched = "DISPATCHED"
	// StatusFailed rows gave up after the relay's attempt cap; the status
	// index keeps them queryable for replay.
	StatusFailed = "FAILED"
)

// Notification is one outbox row and also the SQS message body.
type Notification struct {
	NotificationID string         `dynamodbav:"notification_id" json:"notification_id"` // PK
	RecipientID    string         `dynamodbav:"recipient_id" json:"recipient_id"`
	RecipientRole  Role           `dynamodbav:"recipient_role" json:"recipient_role"`
	Event          Event          `dynamodbav:"event" json:"event"`
	OrderID        string         `dynamodbav:"order_id,omitempty" json:"order_id,omitempty"`
	OrderCode      int64          `dynamodbav:"order_code" json:"order_code"`
	Title          string         `dynamodbav:"title" json:"title"`
	Body           string         `dynamodbav:"body" json:"body"`
	Status         string         `dynamodbav:"status" json:"-"`
	Attempts       int            `dynamodbav:"attempts" json:"-"`
	CreatedAt      aws.Timestamp  `dynamodbav:"created_at" json:"created_at"`
	DispatchedAt   *aws.Timestamp `dynamodbav:"dispatched_at,omitempty" json:"-"`
}

// ID is deterministic so one payment outcome can never yield two rows for the
// same recipient.
func ID(orderCode int64, ev Event, role Role) string {
	return strconv.FormatInt(orderCode, 10) + ":" + string(ev) + ":" + string(role)
}

// New builds a pending notification with the default Vietnamese copy.
func New(orderCode int64, ev Event, role Role, recipientID, orderID string, amount int64, now time.Time) Notification {
	title, body := copyFor(ev, orderID, amount)
	return Notification{
		NotificationID: ID(orderCode, ev, role),
		RecipientID:    recipientID,
		RecipientRole:  role,
		Event:          ev,
		OrderID:        orderID,
		OrderCode:      orderCode,
		Title:          title,
		Body:           body,
		Status:         StatusPending,
		CreatedAt:      aws.At(now),
	}
}

func copyFor(ev Event, orderID string, amount int64) (string, string) {
	switch ev {
	case EventPaymentConfirmed:
		return "Thanh toán thành công", fmt.Sprintf("Đơn hàng %s đã được thanh toán %s.", orderID, formatVND(amount))
	case EventPaymentReceived:
		return "Đã nhận thanh toán", fmt.Sprintf("Khách hàng đã thanh toán %s cho đơn hàng %s.", formatVND(amount), orderID)
	case EventPaymentFailed:
		return "Thanh toán thất bại", fmt.Sprintf("Thanh toán cho đơn hàng %s không thành công. Vui lòng thử lại.", orderID)
	case EventPremiumActivated:
		return "Gói Premium đã kích hoạt", fmt.Sprintf("Gói Premium %s của bạn đã được kích hoạt.", orderID)
	}
	return string(ev), orderID
}

// formatVND renders 120000 as "120.000đ".
func formatVND(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if amount < 0 {
		neg, s = true, s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out) + "đ"
	}
	return string(out) + "đ"
}
