// Package handlers exposes the payment, billing and premium operations over
// HTTP with gin.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/auth"
	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payments"
	"github.com/imrishuroy/laundry-payflow/internal/premium"
	"github.com/imrishuroy/laundry-payflow/internal/validation"
)

type OrderService interface {
	Advance(ctx context.Context, vendorID, orderID string, ev orders.Event) (*orders.Order, error)
	SelectPaymentMethod(ctx context.Context, customerID, orderID string, method orders.PaymentMethod) (*orders.Order, error)
	AttachReview(ctx context.Context, customerID, orderID, reviewID string) error
}

type PaymentService interface {
	CreatePayment(ctx context.Context, customerID, orderID string) (payments.Checkout, error)
	CancelPayment(ctx context.Context, customerID, orderID string) error
	PaymentStatus(ctx context.Context, userID, orderID string) (payments.StatusView, error)
	Reconcile(ctx context.Context, raw []byte) (payments.ReconcileResult, error)
}

type BillingService interface {
	ComputeRevenue(ctx context.Context, vendorID string, month, year int) (billing.Revenue, error)
	ListBills(ctx context.Context, vendorID string, page, limit, month, year int) (billing.BillPage, error)
	GenerateBill(ctx context.Context, vendorID string, month, year int) (*billing.Bill, error)
	MarkPaid(ctx context.Context, vendorID, period string) (*billing.Bill, error)
}

type PremiumService interface {
	Purchase(ctx context.Context, vendorID, packageID string) (premium.Purchase, error)
	ListForVendor(ctx context.Context, vendorID string) ([]premium.VendorPackage, error)
}

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	Orders   OrderService
	Payments PaymentService
	Billing  BillingService
	Premium  PremiumService
	Verifier *auth.Verifier
	Logger   log.FieldLogger
}

type api struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterRoutes registers every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &api{cfg: cfg, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/webhooks/payos", h.payosWebhook)

	authed := r.Group("/api", cfg.Verifier.Middleware())

	customer := authed.Group("", auth.RequireRole(auth.RoleCustomer))
	customer.POST("/orders/:id/payment", h.createPayment)
	customer.POST("/orders/:id/payment/cancel", h.cancelPayment)
	customer.PUT("/orders/:id/payment-method", h.selectPaymentMethod)
	customer.POST("/orders/:id/review", h.attachReview)

	authed.GET("/orders/:id/payment", auth.RequireRole(auth.RoleCustomer, auth.RoleVendor), h.paymentStatus)

	vendor := authed.Group("/vendor", auth.RequireRole(auth.RoleVendor))
	vendor.POST("/orders/:id/advance", h.advanceOrder)
	vendor.GET("/bills", h.listBills)
	vendor.GET("/revenue", h.revenue)
	vendor.POST("/premium", h.purchasePremium)
	vendor.GET("/premium", h.listPremium)

	admin := authed.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/bills", h.generateBill)
	admin.POST("/bills/:vendorId/:period/pay", h.markBillPaid)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c)
	return p
}

// fail renders err as the JSON error envelope in the caller's language.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := apperr.Response(err, c.GetHeader("Accept-Language"))
	var ve *validation.Error
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	c.JSON(status, body)
}
