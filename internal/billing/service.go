package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaidOrders reads orders by payment completion time.
type PaidOrders interface {
	ListPaidByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]orders.Order, error)
}

type Repository interface {
	Create(ctx context.Context, b Bill) error
	Get(ctx context.Context, vendorID, period string) (*Bill, error)
	List(ctx context.Context, vendorID, fromPeriod, toPeriod string) ([]Bill, error)
	MarkPaid(ctx context.Context, vendorID, period string) error
}

// Service computes revenue and manages bills. The commission rate is fixed at
// construction, in basis points.
type Service struct {
	orders  PaidOrders
	bills   Repository
	bps     int64
	loc     *time.Location
	log     log.FieldLogger
	nowFunc func() time.Time
}

func NewService(paid PaidOrders, bills Repository, commissionBPS int64, loc *time.Location, logger log.FieldLogger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{orders: paid, bills: bills, bps: commissionBPS, loc: loc, log: logger, nowFunc: time.Now}
}

// ConflictError is what GenerateBill returns for an existing bill; the
// stored bill is attached.
type ConflictError struct {
	Err  *apperr.Error
	Bill *Bill
}

func (e *ConflictError) Error() string { return e.Err.Error() }
func (e *ConflictError) Unwrap() error { return e.Err }

func validMonth(month, year int) error {
	if month < 1 || month > 12 {
		return apperr.Validation(apperr.CodeInvalidRequest, fmt.Sprintf("month %d out of range", month))
	}
	if year < 2000 || year > 9999 {
		return apperr.Validation(apperr.CodeInvalidRequest, fmt.Sprintf("year %d out of range", year))
	}
	return nil
}

// ComputeRevenue recomputes the vendor's month from order history. Orders count
// by the time their payment completed.
func (s *Service) ComputeRevenue(ctx context.Context, vendorID string, month, year int) (Revenue, error) {
	if err := validMonth(month, year); err != nil {
		return Revenue{}, err
	}
	start, end := MonthBounds(month, year, s.loc)
	paid, err := s.orders.ListPaidByVendor(ctx, vendorID, start, end)
	if err != nil {
		return Revenue{}, apperr.Internal(err, "list paid orders")
	}

	r := Revenue{
		VendorID:      vendorID,
		Period:        Period(month, year),
		Start:         start,
		End:           end,
		CommissionBPS: s.bps,
	}
	for _, o := range paid {
		if !o.Paid() {
			continue
		}
		switch o.PaymentMethod {
		case orders.MethodCOD:
			r.TotalCODRevenue += o.ServicePrice
		case orders.MethodQRCode:
			r.TotalQRCodeRevenue += o.ServicePrice
			r.TotalQRCodeDeliveryFee += o.DeliveryFee
		default:
			s.log.WithField("order_id", o.OrderID).Warn("paid order without payment method")
			continue
		}
		r.OrderCount++
	}
	r.CODCommission = Commission(r.TotalCODRevenue, s.bps)
	r.QRCodeCommission = Commission(r.TotalQRCodeRevenue, s.bps)
	r.AmountPayableToVendor = payable(r.TotalQRCodeRevenue, r.CODCommission, r.QRCodeCommission, r.TotalQRCodeDeliveryFee)
	return r, nil
}

// GenerateBill snapshots a closed month. An existing bill is never recomputed:
// the caller gets a conflict carrying the stored one.
func (s *Service) GenerateBill(ctx context.Context, vendorID string, month, year int) (*Bill, error) {
	if vendorID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "vendor id is required")
	}
	if err := validMonth(month, year); err != nil {
		return nil, err
	}
	now := s.nowFunc()
	if _, end := MonthBounds(month, year, s.loc); end.After(now) {
		return nil, apperr.Validation(apperr.CodePeriodOpen, "period "+Period(month, year)+" has not ended")
	}

	period := Period(month, year)
	if existing, err := s.bills.Get(ctx, vendorID, period); err != nil {
		return nil, apperr.Internal(err, "load bill")
	} else if existing != nil {
		return nil, s.conflict(existing)
	}

	r, err := s.ComputeRevenue(ctx, vendorID, month, year)
	if err != nil {
		return nil, err
	}
	b := Bill{
		VendorID:               vendorID,
		Period:                 period,
		StartDate:              aws.At(r.Start),
		EndDate:                aws.At(r.End),
		TotalCOD:               r.TotalCODRevenue,
		TotalQRCode:            r.TotalQRCodeRevenue,
		CODCommission:          r.CODCommission,
		QRCodeCommission:       r.QRCodeCommission,
		TotalQRCodeDeliveryFee: r.TotalQRCodeDeliveryFee,
		CommissionBPS:          r.CommissionBPS,
		OrderCount:             r.OrderCount,
		Status:                 BillPending,
		CreatedAt:              aws.At(now),
	}
	err = s.bills.Create(ctx, b)
	if errors.Is(err, ErrBillExists) {
		// lost a race with another run for the same period
		existing, gerr := s.bills.Get(ctx, vendorID, period)
		if gerr != nil || existing == nil {
			return nil, apperr.Wrap(apperr.KindConflict, apperr.CodeBillExists, err, "create bill")
		}
		return nil, s.conflict(existing)
	}
	if err != nil {
		return nil, apperr.Internal(err, "create bill")
	}
	s.log.WithFields(log.Fields{"vendor_id": vendorID, "period": period, "net_payable": b.NetPayable()}).Info("bill generated")
	return &b, nil
}

func (s *Service) conflict(existing *Bill) error {
	return &ConflictError{
		Err:  apperr.Conflict(apperr.CodeBillExists, "bill "+existing.Period+" already exists"),
		Bill: existing,
	}
}

// GenerateResult is the per-vendor outcome of a batch run.
type GenerateResult struct {
	VendorID string
	Bill     *Bill
	Err      error
}

// GenerateAll bills each vendor for the month. Failures are reported per
// vendor and do not stop the run.
func (s *Service) GenerateAll(ctx context.Context, vendorIDs []string, month, year int) []GenerateResult {
	results := make([]GenerateResult, 0, len(vendorIDs))
	for _, v := range vendorIDs {
		b, err := s.GenerateBill(ctx, v, month, year)
		if err != nil {
			s.log.WithError(err).WithField("vendor_id", v).Warn("bill not generated")
		}
		results = append(results, GenerateResult{VendorID: v, Bill: b, Err: err})
	}
	return results
}

// ListBills returns one page of the vendor's bills, newest period first. A zero
// month with a year lists that whole year; a month without a year is rejected.
func (s *Service) ListBills(ctx context.Context, vendorID string, page, limit, month, year int) (BillPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	from, to := "0000-01", "9999-12"
	switch {
	case month != 0 && year != 0:
		if err := validMonth(month, year); err != nil {
			return BillPage{}, err
		}
		from, to = Period(month, year), Period(month, year)
	case year != 0:
		if err := validMonth(1, year); err != nil {
			return BillPage{}, err
		}
		from, to = Period(1, year), Period(12, year)
	case month != 0:
		return BillPage{}, apperr.Validation(apperr.CodeInvalidRequest, "month filter needs a year")
	}

	bills, err := s.bills.List(ctx, vendorID, from, to)
	if err != nil {
		return BillPage{}, apperr.Internal(err, "list bills")
	}

	out := BillPage{Bills: []BillView{}, Page: page, Limit: limit, Total: len(bills)}
	lo := (page - 1) * limit
	if lo >= len(bills) {
		return out, nil
	}
	hi := lo + limit
	if hi > len(bills) {
		hi = len(bills)
	}
	for _, b := range bills[lo:hi] {
		out.Bills = append(out.Bills, BillView{Bill: b, NetPayable: b.NetPayable()})
	}
	return out, nil
}

// MarkPaid settles a bill. Settling a paid bill again changes nothing.
func (s *Service) MarkPaid(ctx context.Context, vendorID, period string) (*Bill, error) {
	if _, _, err := ParsePeriod(period); err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, err.Error())
	}
	err := s.bills.MarkPaid(ctx, vendorID, period)
	if err != nil && !errors.Is(err, ErrNotPending) {
		return nil, apperr.Internal(err, "mark bill paid")
	}
	b, gerr := s.bills.Get(ctx, vendorID, period)
	if gerr != nil {
		return nil, apperr.Internal(gerr, "load bill")
	}
	if b == nil {
		return nil, apperr.NotFound(apperr.CodeBillNotFound, "bill "+period+" not found")
	}
	if err == nil {
		s.log.WithFields(log.Fields{"vendor_id": vendorID, "period": period}).Info("bill paid")
	}
	return b, nil
}
