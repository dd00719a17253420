// Package billing aggregates vendor revenue over calendar months and keeps the
// append-only bill snapshots vendors are settled against.
package billing

import (
	"fmt"
	"time"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

type BillStatus string

const (
	BillPending BillStatus = "PENDING"
	BillPaid    BillStatus = "PAID"
)

// Revenue is the on-demand summary of a vendor's paid orders for one month.
type Revenue struct {
	VendorID               string    `json:"vendorId"`
	Period                 string    `json:"period"`
	Start                  time.Time `json:"startDate"`
	End                    time.Time `json:"endDate"`
	TotalCODRevenue        int64     `json:"totalCODRevenue"`
	TotalQRCodeRevenue     int64     `json:"totalQRCodeRevenue"`
	TotalQRCodeDeliveryFee int64     `json:"totalQRCodeDeliveryFee"`
	CODCommission          int64     `json:"codCommission"`
	QRCodeCommission       int64     `json:"qrcodeCommission"`
	CommissionBPS          int64     `json:"commissionBps"`
	OrderCount             int       `json:"orderCount"`
	AmountPayableToVendor  int64     `json:"amountPayableToVendor"`
}

// Bill is the stored snapshot of a closed period. Only Status and PaidAt change
// after creation.
type Bill struct {
	VendorID               string         `dynamodbav:"vendor_id" json:"vendorId"` // PK
	Period                 string         `dynamodbav:"period" json:"period"`      // SK, YYYY-MM
	StartDate              aws.Timestamp  `dynamodbav:"start_date" json:"startDate"`
	EndDate                aws.Timestamp  `dynamodbav:"end_date" json:"endDate"`
	TotalCOD               int64          `dynamodbav:"total_cod" json:"totalCOD"`
	TotalQRCode            int64          `dynamodbav:"total_qrcode" json:"totalQRCode"`
	CODCommission          int64          `dynamodbav:"cod_commission" json:"codCommission"`
	QRCodeCommission       int64          `dynamodbav:"qrcode_commission" json:"qrcodeCommission"`
	TotalQRCodeDeliveryFee int64          `dynamodbav:"total_qrcode_delivery_fee" json:"totalQRCodeDeliveryFee"`
	CommissionBPS          int64          `dynamodbav:"commission_bps" json:"commissionBps"`
	OrderCount             int            `dynamodbav:"order_count" json:"orderCount"`
	Status                 BillStatus     `dynamodbav:"status" json:"status"`
	CreatedAt              aws.Timestamp  `dynamodbav:"created_at" json:"createdAt"`
	PaidAt                 *aws.Timestamp `dynamodbav:"paid_at,omitempty" json:"paidAt,omitempty"`
}

// NetPayable is derived from the stored totals and never stored itself.
func (b Bill) NetPayable() int64 {
	return payable(b.TotalQRCode, b.CODCommission, b.QRCodeCommission, b.TotalQRCodeDeliveryFee)
}

// BillView is a bill as returned to vendors.
type BillView struct {
	Bill
	NetPayable int64 `json:"netPayable"`
}

type BillPage struct {
	Bills []BillView `json:"bills"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Total int        `json:"total"`
}

// Commission applies a basis-point rate with half-up rounding in integer
// arithmetic.
func Commission(revenue, bps int64) int64 {
	return (revenue*bps + 5000) / 10000
}

func payable(qrRevenue, codCommission, qrCommission, qrDeliveryFee int64) int64 {
	n := qrRevenue - codCommission - qrCommission + qrDeliveryFee
	if n < 0 {
		return 0
	}
	return n
}

// Period formats a month key.
func Period(month, year int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParsePeriod reads a YYYY-MM key.
func ParsePeriod(p string) (month, year int, err error) {
	t, err := time.Parse("2006-01", p)
	if err != nil {
		return 0, 0, fmt.Errorf("period %q: %w", p, err)
	}
	return int(t.Month()), t.Year(), nil
}

// MonthBounds returns [start, end) of a calendar month in loc.
func MonthBounds(month, year int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
