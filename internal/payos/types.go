package payos

import "time"

// SuccessCode is the gateway's "ok" code for API responses and paid webhooks.
const SuccessCode = "00"

// Item is a line shown on the hosted checkout page.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// PaymentRequest describes one checkout session. OrderCode must be unique in the
// gateway namespace and Amount positive.
type PaymentRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	Items       []Item
	BuyerName   string
	BuyerEmail  string
	BuyerPhone  string
	ReturnURL   string
	CancelURL   string
	ExpiredAt   *time.Time
}

// CheckoutResult is what the gateway returns for a created link.
type CheckoutResult struct {
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
	Status        string `json:"status"`
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
}

// StatusSnapshot is the gateway-side view of a payment link.
type StatusSnapshot struct {
	ID                 string `json:"id"`
	OrderCode          int64  `json:"orderCode"`
	Amount             int64  `json:"amount"`
	AmountPaid         int64  `json:"amountPaid"`
	AmountRemaining    int64  `json:"amountRemaining"`
	Status             string `json:"status"`
	CreatedAt          string `json:"createdAt"`
	CanceledAt         string `json:"canceledAt,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`
}

// WebhookData is the verified payload of a payment notification.
type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	AccountNumber       string `json:"accountNumber"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	Currency            string `json:"currency"`
	PaymentLinkID       string `json:"paymentLinkId"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
}

// Success reports whether the notification says the money arrived.
func (w WebhookData) Success() bool { return w.Code == SuccessCode }

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Items       []Item `json:"items,omitempty"`
	BuyerName   string `json:"buyerName,omitempty"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	BuyerPhone  string `json:"buyerPhone,omitempty"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

type cancelRequest struct {
	CancellationReason string `json:"cancellationReason,omitempty"`
}
