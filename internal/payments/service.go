package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/ordercode"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payos"
)

const maxApplyAttempts = 3

// Gateway is the payment gateway adapter.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req payos.PaymentRequest) (payos.CheckoutResult, error)
	VerifyWebhook(raw []byte) (payos.WebhookData, error)
	GetPaymentStatus(ctx context.Context, orderCode int64) (payos.StatusSnapshot, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
}

type Codes interface {
	Next(ctx context.Context, kind ordercode.Kind) (ordercode.Code, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

type Repository interface {
	GetLink(ctx context.Context, code int64) (*Link, error)
	LatestLink(ctx context.Context, orderID string) (*Link, error)
	CreateLink(ctx context.Context, link Link, prevCode *int64) error
	ApplySuccess(ctx context.Context, st Settlement) error
	ApplyFailure(ctx context.Context, st Settlement) error
	CancelLink(ctx context.Context, code int64) error
}

// PremiumActivator applies webhooks in the premium code namespace. applied is
// false when the delivery changed nothing.
type PremiumActivator interface {
	Activate(ctx context.Context, data payos.WebhookData) (applied bool, err error)
}

type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string) error
}

type Options struct {
	ReturnURL string
	CancelURL string
}

// Service owns the payment state machine for customer orders.
type Service struct {
	orders  OrderReader
	repo    Repository
	gateway Gateway
	codes   Codes
	premium PremiumActivator
	metrics Counter
	opts    Options
	log     log.FieldLogger
	nowFunc func() time.Time
}

func NewService(ordersRepo OrderReader, repo Repository, gateway Gateway, codes Codes, premium PremiumActivator, metrics Counter, opts Options, logger log.FieldLogger) *Service {
	return &Service{
		orders:  ordersRepo,
		repo:    repo,
		gateway: gateway,
		codes:   codes,
		premium: premium,
		metrics: metrics,
		opts:    opts,
		log:     logger,
		nowFunc: time.Now,
	}
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "load order")
	}
	if o == nil {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order "+orderID+" not found")
	}
	return o, nil
}

// CreatePayment opens a QR checkout for the customer's order, or returns the
// attempt that is still open. The gateway link is created before anything is
// stored; if storing fails the gateway link is cancelled.
func (s *Service) CreatePayment(ctx context.Context, customerID, orderID string) (Checkout, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Checkout{}, err
	}
	if o.CustomerID != customerID {
		return Checkout{}, apperr.Forbidden(apperr.CodeNotOrderOwner, "order belongs to another customer")
	}
	if o.Paid() {
		return Checkout{}, apperr.Conflict(apperr.CodeOrderAlreadyPaid, "order already paid")
	}
	if o.Status != orders.StatusPaymentRequired || o.PaymentMethod != orders.MethodQRCode {
		return Checkout{}, apperr.Conflict(apperr.CodeOrderNotPayable, fmt.Sprintf("order is %s/%s", o.Status, o.PaymentMethod))
	}

	latest, err := s.repo.LatestLink(ctx, orderID)
	if err != nil {
		return Checkout{}, apperr.Internal(err, "load payment link")
	}
	if latest != nil {
		switch latest.Status {
		case LinkPending:
			return Checkout{CheckoutURL: latest.CheckoutURL, OrderCode: latest.OrderCode, Reused: true}, nil
		case LinkPaid:
			return Checkout{}, apperr.Conflict(apperr.CodeOrderAlreadyPaid, "payment already received")
		}
	}

	code, err := s.codes.Next(ctx, ordercode.KindCustomer)
	if err != nil {
		return Checkout{}, apperr.Internal(err, "generate order code")
	}

	req := payos.PaymentRequest{
		OrderCode:   code.Int64(),
		Amount:      o.Total(),
		Description: fmt.Sprintf("DH %d", code.Int64()),
		ReturnURL:   s.opts.ReturnURL,
		CancelURL:   s.opts.CancelURL,
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, payos.Item{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPrice})
	}

	res, err := s.gateway.CreatePaymentLink(ctx, req)
	if err != nil {
		return Checkout{}, apperr.Gateway(err, "create payment link")
	}

	link := Link{
		OrderCode:     code.Int64(),
		OrderID:       o.OrderID,
		PaymentLinkID: res.PaymentLinkID,
		CheckoutURL:   res.CheckoutURL,
		Amount:        req.Amount,
	}
	if err := s.repo.CreateLink(ctx, link, o.OrderCode); err != nil {
		if cerr := s.gateway.CancelPaymentLink(ctx, link.OrderCode, "local persistence failed"); cerr != nil {
			s.log.WithError(cerr).WithField("order_code", link.OrderCode).Warn("orphaned gateway link not cancelled")
		}
		if errors.Is(err, ErrConflict) {
			return Checkout{}, apperr.Wrap(apperr.KindConflict, apperr.CodeOrderNotPayable, err, "order changed while creating payment")
		}
		return Checkout{}, apperr.Internal(err, "store payment link")
	}

	s.log.WithFields(log.Fields{"order_id": o.OrderID, "order_code": link.OrderCode}).Info("payment link created")
	return Checkout{CheckoutURL: link.CheckoutURL, OrderCode: link.OrderCode}, nil
}

// Reconcile applies a raw gateway webhook. Redelivered or out-of-order
// webhooks for a finished link are acknowledged without any write.
func (s *Service) Reconcile(ctx context.Context, raw []byte) (res ReconcileResult, err error) {
	defer func() {
		outcome := res.Outcome
		if err != nil && outcome == "" {
			outcome = OutcomeError
		}
		if merr := s.count(ctx, outcome); merr != nil {
			s.log.WithError(merr).Debug("webhook metric not published")
		}
	}()

	data, err := s.gateway.VerifyWebhook(raw)
	if err != nil {
		if errors.Is(err, payos.ErrInvalidSignature) {
			return ReconcileResult{Outcome: OutcomeInvalidSignature}, apperr.Wrap(apperr.KindInvalidSignature, apperr.CodeInvalidSignature, err, "verify webhook")
		}
		return ReconcileResult{}, apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, err, "parse webhook")
	}

	entry := s.log.WithFields(log.Fields{"order_code": data.OrderCode, "gateway_code": data.Code})
	res = ReconcileResult{OrderCode: data.OrderCode}

	switch ordercode.KindOf(data.OrderCode) {
	case ordercode.KindPremium:
		return s.reconcilePremium(ctx, data, entry)
	case ordercode.KindCustomer:
	default:
		res.Outcome = OutcomeUnknownOrderCode
		return res, apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "order code outside known namespaces")
	}

	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		link, err := s.repo.GetLink(ctx, data.OrderCode)
		if err != nil {
			return res, apperr.Internal(err, "load payment link")
		}
		if link == nil {
			res.Outcome = OutcomeUnknownOrderCode
			entry.Warn("webhook for unknown order code")
			return res, apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "no payment link for order code")
		}
		res.OrderID = link.OrderID

		if link.Status.Terminal() {
			res.Outcome = terminalOutcome(link.Status, data.Success())
			entry.WithFields(log.Fields{"link_status": link.Status, "outcome": res.Outcome}).Info("webhook ignored")
			return res, nil
		}

		o, err := s.orders.Get(ctx, link.OrderID)
		if err != nil {
			return res, apperr.Internal(err, "load order")
		}
		if o == nil {
			return res, apperr.Internal(fmt.Errorf("order %s missing for link %d", link.OrderID, link.OrderCode), "load order")
		}
		if data.Amount != link.Amount {
			entry.WithFields(log.Fields{"expected": link.Amount, "got": data.Amount}).Warn("webhook amount differs from link")
		}

		st, outcome, err := s.settlement(*link, *o, data.Success())
		if err != nil {
			return res, apperr.Internal(err, "build settlement")
		}
		if outcome == OutcomePaid {
			err = s.repo.ApplySuccess(ctx, st)
		} else {
			err = s.repo.ApplyFailure(ctx, st)
		}
		if err == nil {
			res.Outcome = outcome
			entry.WithFields(log.Fields{"order_id": o.OrderID, "outcome": outcome, "order_status": st.NextStatus}).Info("webhook applied")
			return res, nil
		}
		if !errors.Is(err, ErrConflict) {
			return res, apperr.Internal(err, "apply webhook")
		}
		entry.WithField("attempt", attempt).Info("webhook raced another writer, re-reading")
	}
	return res, apperr.Internal(errors.New("retries exhausted"), "apply webhook")
}

func (s *Service) settlement(link Link, o orders.Order, success bool) (Settlement, Outcome, error) {
	now := s.nowFunc()
	st := Settlement{Link: link, Order: o, NextStatus: o.Status, At: now}
	if !success {
		st.Notifications = []notify.Notification{
			notify.New(link.OrderCode, notify.EventPaymentFailed, notify.RoleCustomer, o.CustomerID, o.OrderID, link.Amount, now),
		}
		return st, OutcomeFailed, nil
	}

	next, err := orders.Transition(o.Status, orders.EventPaymentSucceeded)
	if err != nil {
		return Settlement{}, "", err
	}
	st.NextStatus = next
	st.Notifications = []notify.Notification{
		notify.New(link.OrderCode, notify.EventPaymentConfirmed, notify.RoleCustomer, o.CustomerID, o.OrderID, link.Amount, now),
		notify.New(link.OrderCode, notify.EventPaymentReceived, notify.RoleVendor, o.VendorID, o.OrderID, link.Amount, now),
	}
	return st, OutcomePaid, nil
}

func terminalOutcome(status LinkStatus, success bool) Outcome {
	if (status == LinkPaid && success) || (status == LinkFailed && !success) {
		return OutcomeAlreadyApplied
	}
	return OutcomeConflictingDropped
}

func (s *Service) reconcilePremium(ctx context.Context, data payos.WebhookData, entry *log.Entry) (ReconcileResult, error) {
	res := ReconcileResult{OrderCode: data.OrderCode}
	if s.premium == nil {
		res.Outcome = OutcomeUnknownOrderCode
		return res, apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "premium payments disabled")
	}
	applied, err := s.premium.Activate(ctx, data)
	if err != nil {
		if apperr.Is(err, apperr.KindUnknownOrderCode) {
			res.Outcome = OutcomeUnknownOrderCode
		}
		return res, err
	}
	switch {
	case !data.Success():
		res.Outcome = OutcomePremiumNotPaid
	case applied:
		res.Outcome = OutcomePremiumActivated
	default:
		res.Outcome = OutcomeAlreadyApplied
	}
	entry.WithField("outcome", res.Outcome).Info("premium webhook handled")
	return res, nil
}

// CancelPayment closes the order's open QR attempt. The order itself is not
// changed, so the customer can start a new attempt or switch to cash.
func (s *Service) CancelPayment(ctx context.Context, customerID, orderID string) error {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.CustomerID != customerID {
		return apperr.Forbidden(apperr.CodeNotOrderOwner, "order belongs to another customer")
	}
	link, err := s.repo.LatestLink(ctx, orderID)
	if err != nil {
		return apperr.Internal(err, "load payment link")
	}
	if link == nil {
		return apperr.NotFound(apperr.CodeLinkNotFound, "order has no payment link")
	}
	if link.Status != LinkPending {
		return apperr.Conflict(apperr.CodePaymentNotPending, "payment link is "+string(link.Status))
	}

	if err := s.repo.CancelLink(ctx, link.OrderCode); err != nil {
		if errors.Is(err, ErrConflict) {
			return apperr.Wrap(apperr.KindConflict, apperr.CodePaymentNotPending, err, "cancel payment")
		}
		return apperr.Internal(err, "cancel payment")
	}
	if err := s.gateway.CancelPaymentLink(ctx, link.OrderCode, "cancelled by customer"); err != nil {
		s.log.WithError(err).WithField("order_code", link.OrderCode).Warn("gateway cancel failed")
	}
	s.log.WithFields(log.Fields{"order_id": orderID, "order_code": link.OrderCode}).Info("payment cancelled")
	return nil
}

// PaymentStatus returns local state plus the gateway's view. A gateway failure
// only marks the answer degraded.
func (s *Service) PaymentStatus(ctx context.Context, userID, orderID string) (StatusView, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return StatusView{}, err
	}
	if o.CustomerID != userID && o.VendorID != userID {
		return StatusView{}, apperr.Forbidden(apperr.CodeNotOrderOwner, "order belongs to someone else")
	}

	view := StatusView{
		OrderID:       o.OrderID,
		OrderStatus:   o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		OrderCode:     o.OrderCode,
	}
	link, err := s.repo.LatestLink(ctx, orderID)
	if err != nil {
		return StatusView{}, apperr.Internal(err, "load payment link")
	}
	if link == nil {
		return view, nil
	}
	view.LinkStatus = link.Status
	if link.Status == LinkPending {
		view.CheckoutURL = link.CheckoutURL
	}

	snap, err := s.gateway.GetPaymentStatus(ctx, link.OrderCode)
	if err != nil {
		s.log.WithError(err).WithField("order_code", link.OrderCode).Warn("gateway status unavailable")
		view.Degraded = true
		return view, nil
	}
	view.GatewayStatus = &snap
	return view, nil
}

func (s *Service) count(ctx context.Context, outcome Outcome) error {
	if s.metrics == nil || outcome == "" {
		return nil
	}
	return s.metrics.Count(ctx, "WebhookOutcome", map[string]string{"Outcome": string(outcome)})
}
