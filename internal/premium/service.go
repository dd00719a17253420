package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/ordercode"
	"github.com/imrishuroy/laundry-payflow/internal/payos"
)

type Gateway interface {
	CreatePaymentLink(ctx context.Context, req payos.PaymentRequest) (payos.CheckoutResult, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
}

type Codes interface {
	Next(ctx context.Context, kind ordercode.Kind) (ordercode.Code, error)
}

type Repository interface {
	GetPackage(ctx context.Context, id string) (*Package, error)
	Create(ctx context.Context, vp VendorPackage) error
	GetByOrderCode(ctx context.Context, code int64) (*VendorPackage, error)
	ListForVendor(ctx context.Context, vendorID string) ([]VendorPackage, error)
	ListExpiring(ctx context.Context, now time.Time) ([]VendorPackage, error)
	Activate(ctx context.Context, id string, activatedAt, expiresAt time.Time, n notify.Notification) error
	Expire(ctx context.Context, id string, now time.Time) error
}

type Options struct {
	ReturnURL string
	CancelURL string
}

type Service struct {
	repo    Repository
	gateway Gateway
	codes   Codes
	opts    Options
	log     log.FieldLogger
	nowFunc func() time.Time
}

func NewService(repo Repository, gateway Gateway, codes Codes, opts Options, logger log.FieldLogger) *Service {
	return &Service{repo: repo, gateway: gateway, codes: codes, opts: opts, log: logger, nowFunc: time.Now}
}

// Purchase opens a checkout for a catalog package. As with customer orders,
// nothing is stored unless the gateway link exists.
func (s *Service) Purchase(ctx context.Context, vendorID, packageID string) (Purchase, error) {
	if packageID == "" {
		return Purchase{}, apperr.Validation(apperr.CodeInvalidRequest, "package id is required")
	}
	pkg, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return Purchase{}, apperr.Internal(err, "load package")
	}
	if pkg == nil || !pkg.Active {
		return Purchase{}, apperr.NotFound(apperr.CodePackageNotFound, "package "+packageID+" not available")
	}

	code, err := s.codes.Next(ctx, ordercode.KindPremium)
	if err != nil {
		return Purchase{}, apperr.Internal(err, "generate order code")
	}
	res, err := s.gateway.CreatePaymentLink(ctx, payos.PaymentRequest{
		OrderCode:   code.Int64(),
		Amount:      pkg.Price,
		Description: fmt.Sprintf("PREMIUM %d", code.Int64()),
		Items:       []payos.Item{{Name: pkg.Name, Quantity: 1, Price: pkg.Price}},
		ReturnURL:   s.opts.ReturnURL,
		CancelURL:   s.opts.CancelURL,
	})
	if err != nil {
		return Purchase{}, apperr.Gateway(err, "create premium payment link")
	}

	now := aws.At(s.nowFunc())
	vp := VendorPackage{
		ID:           uuid.NewString(),
		VendorID:     vendorID,
		PackageID:    pkg.ID,
		PackageName:  pkg.Name,
		Price:        pkg.Price,
		DurationDays: pkg.DurationDays,
		Status:       StatusPending,
		OrderCode:    code.Int64(),
		CheckoutURL:  res.CheckoutURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, vp); err != nil {
		if cerr := s.gateway.CancelPaymentLink(ctx, vp.OrderCode, "local persistence failed"); cerr != nil {
			s.log.WithError(cerr).WithField("order_code", vp.OrderCode).Warn("orphaned gateway link not cancelled")
		}
		return Purchase{}, apperr.Internal(err, "store vendor package")
	}

	s.log.WithFields(log.Fields{"vendor_id": vendorID, "package_id": pkg.ID, "order_code": vp.OrderCode}).Info("premium purchase started")
	return Purchase{Package: vp, CheckoutURL: vp.CheckoutURL, OrderCode: vp.OrderCode}, nil
}

// Activate applies a verified premium webhook. applied is false when nothing
// changed: a failed payment leaves the package PENDING, and a repeat delivery
// finds it already ACTIVE.
func (s *Service) Activate(ctx context.Context, data payos.WebhookData) (bool, error) {
	vp, err := s.repo.GetByOrderCode(ctx, data.OrderCode)
	if err != nil {
		return false, apperr.Internal(err, "load vendor package")
	}
	if vp == nil {
		return false, apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "no premium purchase for order code")
	}
	entry := s.log.WithFields(log.Fields{"vendor_package_id": vp.ID, "order_code": vp.OrderCode})

	if !data.Success() {
		entry.WithField("gateway_code", data.Code).Warn("premium payment not successful, package stays pending")
		return false, nil
	}
	if vp.Status != StatusPending {
		return false, nil
	}

	now := s.nowFunc()
	n := notify.New(vp.OrderCode, notify.EventPremiumActivated, notify.RoleVendor, vp.VendorID, vp.ID, vp.Price, now)
	err = s.repo.Activate(ctx, vp.ID, now, now.Add(vp.Duration()), n)
	if errors.Is(err, ErrNotPending) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Internal(err, "activate vendor package")
	}
	entry.Info("premium package activated")
	return true, nil
}

// ExpireDue expires every ACTIVE package past its expiry and returns how many
// it moved.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, apperr.Internal(err, "list expiring packages")
	}
	expired := 0
	for _, vp := range due {
		err := s.repo.Expire(ctx, vp.ID, now)
		if errors.Is(err, ErrNotActive) {
			continue
		}
		if err != nil {
			return expired, apperr.Internal(err, "expire vendor package")
		}
		expired++
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("premium packages expired")
	}
	return expired, nil
}

func (s *Service) ListForVendor(ctx context.Context, vendorID string) ([]VendorPackage, error) {
	vps, err := s.repo.ListForVendor(ctx, vendorID)
	if err != nil {
		return nil, apperr.Internal(err, "list vendor packages")
	}
	if vps == nil {
		vps = []VendorPackage{}
	}
	return vps, nil
}
