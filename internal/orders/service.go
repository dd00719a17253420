package orders

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
)

// Repository is the subset of Store the service needs.
type Repository interface {
	Get(ctx context.Context, orderID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, expected, next Status) error
	CompleteCashPayment(ctx context.Context, orderID string, expected Status) error
	SetPaymentMethod(ctx context.Context, orderID string, method PaymentMethod) error
	AttachReview(ctx context.Context, orderID, reviewID string) error
}

// PendingLinks reports whether a QR payment attempt is still open for an order.
type PendingLinks interface {
	HasPendingLink(ctx context.Context, orderID string) (bool, error)
}

// Service applies customer and vendor actions to orders.
type Service struct {
	repo  Repository
	links PendingLinks
	log   log.FieldLogger
}

func NewService(repo Repository, links PendingLinks, logger log.FieldLogger) *Service {
	return &Service{repo: repo, links: links, log: logger}
}

// Load returns the order or a NotFound error.
func (s *Service) Load(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "load order")
	}
	if o == nil {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order "+orderID+" not found")
	}
	return o, nil
}

// Advance moves an order along the vendor workflow.
func (s *Service) Advance(ctx context.Context, vendorID, orderID string, ev Event) (*Order, error) {
	if !VendorEvents[ev] {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "unsupported event "+string(ev))
	}
	o, err := s.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.VendorID != vendorID {
		return nil, apperr.Forbidden(apperr.CodeNotOrderVendor, "order belongs to another vendor")
	}

	next, err := Next(*o, ev)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConflict, apperr.CodeInvalidTransition, err, "advance order")
	}

	if ev == EventCollectCash {
		err = s.repo.CompleteCashPayment(ctx, orderID, o.Status)
	} else {
		err = s.repo.UpdateStatus(ctx, orderID, o.Status, next)
	}
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Wrap(apperr.KindConflict, apperr.CodeInvalidTransition, err, "order changed concurrently")
	}
	if err != nil {
		return nil, apperr.Internal(err, "advance order")
	}

	s.log.WithFields(log.Fields{
		"order_id": orderID,
		"event":    ev,
		"from":     o.Status,
		"to":       next,
	}).Info("order advanced")

	o.Status = next
	if ev == EventCollectCash {
		o.PaymentStatus = PaymentCompleted
	}
	return o, nil
}

// SelectPaymentMethod lets the customer pick COD or QR while the order is
// unpaid and no QR attempt is open.
func (s *Service) SelectPaymentMethod(ctx context.Context, customerID, orderID string, method PaymentMethod) (*Order, error) {
	if !method.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "unsupported payment method "+string(method))
	}
	o, err := s.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, apperr.Forbidden(apperr.CodeNotOrderOwner, "order belongs to another customer")
	}
	if o.Paid() {
		return nil, apperr.Conflict(apperr.CodeOrderAlreadyPaid, "order already paid")
	}
	if o.PaymentMethod == method {
		return o, nil
	}
	if s.links != nil && o.OrderCode != nil {
		pending, err := s.links.HasPendingLink(ctx, orderID)
		if err != nil {
			return nil, apperr.Internal(err, "check payment links")
		}
		if pending {
			return nil, apperr.Conflict(apperr.CodeMethodLocked, "cancel the open QR payment first")
		}
	}

	err = s.repo.SetPaymentMethod(ctx, orderID, method)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Wrap(apperr.KindConflict, apperr.CodeMethodLocked, err, "set payment method")
	}
	if err != nil {
		return nil, apperr.Internal(err, "set payment method")
	}
	o.PaymentMethod = method
	return o, nil
}

// AttachReview records the customer's review id on a completed order, once.
func (s *Service) AttachReview(ctx context.Context, customerID, orderID, reviewID string) error {
	if reviewID == "" {
		return apperr.Validation(apperr.CodeInvalidRequest, "review id is required")
	}
	o, err := s.Load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.CustomerID != customerID {
		return apperr.Forbidden(apperr.CodeNotOrderOwner, "order belongs to another customer")
	}
	if o.ReviewID != "" {
		return apperr.Conflict(apperr.CodeReviewExists, "order already reviewed")
	}
	if o.Status != StatusCompleted {
		return apperr.Conflict(apperr.CodeInvalidTransition, "only completed orders can be reviewed")
	}

	err = s.repo.AttachReview(ctx, orderID, reviewID)
	if errors.Is(err, ErrStatusMismatch) {
		return apperr.Wrap(apperr.KindConflict, apperr.CodeReviewExists, err, "attach review")
	}
	if err != nil {
		return apperr.Internal(err, "attach review")
	}
	return nil
}
