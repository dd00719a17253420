package orders

import (
	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

type Status string

// Order statuses
const (
	StatusPending         Status = "PENDING"
	StatusConfirmed       Status = "CONFIRMED"
	StatusPickedUp        Status = "PICKED_UP"
	StatusInWashing       Status = "IN_WASHING"
	StatusPaymentRequired Status = "PAYMENT_REQUIRED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodQRCode PaymentMethod = "QRCODE"
)

func (m PaymentMethod) Valid() bool { return m == MethodCOD || m == MethodQRCode }

// Item is one ordered laundry service line.
type Item struct {
	Name      string `dynamodbav:"name" json:"name"`
	Quantity  int    `dynamodbav:"quantity" json:"quantity"`
	UnitPrice int64  `dynamodbav:"unit_price" json:"unitPrice"`
}

// Order represents the item stored in the orders table. Money is in the
// smallest currency unit.
type Order struct {
	OrderID            string         `dynamodbav:"order_id" json:"orderId"` // PK
	CustomerID         string         `dynamodbav:"customer_id" json:"customerId"`
	VendorID           string         `dynamodbav:"vendor_id" json:"vendorId"`
	ServicePrice       int64          `dynamodbav:"service_price" json:"servicePrice"`
	DeliveryFee        int64          `dynamodbav:"delivery_fee" json:"deliveryFee"`
	Items              []Item         `dynamodbav:"items,omitempty" json:"items,omitempty"`
	PaymentMethod      PaymentMethod  `dynamodbav:"payment_method" json:"paymentMethod"`
	Status             Status         `dynamodbav:"status" json:"status"`
	PaymentStatus      PaymentStatus  `dynamodbav:"payment_status" json:"paymentStatus"`
	OrderCode          *int64         `dynamodbav:"order_code,omitempty" json:"orderCode,omitempty"`                    // current QR attempt
	PaymentCompletedAt *aws.Timestamp `dynamodbav:"payment_completed_at,omitempty" json:"paymentCompletedAt,omitempty"` // vendor-paid-index range key
	ReviewID           string         `dynamodbav:"review_id,omitempty" json:"reviewId,omitempty"`
	CreatedAt          aws.Timestamp  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt          aws.Timestamp  `dynamodbav:"updated_at" json:"updatedAt"`
}

// Total is what the customer pays through the gateway.
func (o Order) Total() int64 { return o.ServicePrice + o.DeliveryFee }

// Paid reports whether money for the order has been recognised.
func (o Order) Paid() bool { return o.PaymentStatus == PaymentCompleted }
