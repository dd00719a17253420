package validation

// AdvanceOrderRequest is the payload for POST /api/vendor/orders/:id/advance
type AdvanceOrderRequest struct {
	Event string `json:"event" validate:"required,order_event"` // vendor workflow event
}

// SelectPaymentMethodRequest is the payload for PUT /api/orders/:id/payment-method
type SelectPaymentMethodRequest struct {
	Method string `json:"paymentMethod" validate:"required,oneof=COD QRCODE"`
}

// AttachReviewRequest is the payload for POST /api/orders/:id/review
type AttachReviewRequest struct {
	ReviewID string `json:"reviewId" validate:"required,max=64"`
}

// GenerateBillRequest is the payload for POST /api/admin/bills
type GenerateBillRequest struct {
	VendorID string `json:"vendorId" validate:"required"`
	Month    int    `json:"month" validate:"required,min=1,max=12"`
	Year     int    `json:"year" validate:"required,min=2000,max=9999"`
}

// PurchasePremiumRequest is the payload for POST /api/vendor/premium
type PurchasePremiumRequest struct {
	PackageID string `json:"packageId" validate:"required"`
}

// ListBillsQuery is the query of GET /api/vendor/bills. A month filter needs a year.
type ListBillsQuery struct {
	Page  int `form:"page" json:"page" validate:"omitempty,min=1"`
	Limit int `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
	Month int `form:"month" json:"month" validate:"omitempty,min=1,max=12"`
	Year  int `form:"year" json:"year" validate:"omitempty,min=2000,max=9999"`
}

// RevenueQuery is the query of GET /api/vendor/revenue
type RevenueQuery struct {
	Month int `form:"month" json:"month" validate:"required,min=1,max=12"`
	Year  int `form:"year" json:"year" validate:"required,min=2000,max=9999"`
}
