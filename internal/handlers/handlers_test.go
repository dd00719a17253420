package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/auth"
	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payments"
	"github.com/imrishuroy/laundry-payflow/internal/premium"
)

const jwtSecret = "handler-secret"

type fakeOrders struct {
	advanced orders.Event
	method   orders.PaymentMethod
	err      error
}

func (f *fakeOrders) Advance(_ context.Context, vendorID, orderID string, ev orders.Event) (*orders.Order, error) {
	f.advanced = ev
	return &orders.Order{OrderID: orderID, VendorID: vendorID}, f.err
}

func (f *fakeOrders) SelectPaymentMethod(_ context.Context, customerID, orderID string, m orders.PaymentMethod) (*orders.Order, error) {
	f.method = m
	return &orders.Order{OrderID: orderID, CustomerID: customerID, PaymentMethod: m}, f.err
}

func (f *fakeOrders) AttachReview(context.Context, string, string, string) error { return f.err }

type fakePayments struct {
	checkout  payments.Checkout
	result    payments.ReconcileResult
	err       error
	webhooks  [][]byte
	createdBy string
}

func (f *fakePayments) CreatePayment(_ context.Context, customerID, _ string) (payments.Checkout, error) {
	f.createdBy = customerID
	return f.checkout, f.err
}

func (f *fakePayments) CancelPayment(context.Context, string, string) error { return f.err }

func (f *fakePayments) PaymentStatus(_ context.Context, _, orderID string) (payments.StatusView, error) {
	return payments.StatusView{OrderID: orderID, Degraded: true}, f.err
}

func (f *fakePayments) Reconcile(_ context.Context, raw []byte) (payments.ReconcileResult, error) {
	f.webhooks = append(f.webhooks, raw)
	return f.result, f.err
}

type fakeBilling struct {
	bill    *billing.Bill
	err     error
	revenue billing.Revenue
}

func (f *fakeBilling) ComputeRevenue(_ context.Context, vendorID string, month, year int) (billing.Revenue, error) {
	r := f.revenue
	r.VendorID = vendorID
	r.Period = billing.Period(month, year)
	return r, f.err
}

func (f *fakeBilling) ListBills(_ context.Context, _ string, page, limit, _, _ int) (billing.BillPage, error) {
	return billing.BillPage{Page: page, Limit: limit}, f.err
}

func (f *fakeBilling) GenerateBill(context.Context, string, int, int) (*billing.Bill, error) {
	return f.bill, f.err
}

func (f *fakeBilling) MarkPaid(context.Context, string, string) (*billing.Bill, error) {
	return f.bill, f.err
}

type fakePremium struct{}

func (fakePremium) Purchase(_ context.Context, _, packageID string) (premium.Purchase, error) {
	return premium.Purchase{Package: premium.VendorPackage{PackageID: packageID}, CheckoutURL: "https://pay.example/x"}, nil
}

func (fakePremium) ListForVendor(context.Context, string) ([]premium.VendorPackage, error) {
	return nil, nil
}

type harness struct {
	r        *gin.Engine
	orders   *fakeOrders
	payments *fakePayments
	billing  *fakeBilling
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	h := &harness{r: gin.New(), orders: &fakeOrders{}, payments: &fakePayments{}, billing: &fakeBilling{}}
	RegisterRoutes(h.r, HandlerConfig{
		Orders:   h.orders,
		Payments: h.payments,
		Billing:  h.billing,
		Premium:  fakePremium{},
		Verifier: auth.NewVerifier(jwtSecret),
		Logger:   logger,
	})
	return h
}

func token(t *testing.T, sub string, role auth.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (h *harness) do(method, path, tok string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/orders/o-1/payment", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/orders/o-1/payment", token(t, "v-1", auth.RoleVendor), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body apperr.Body
	decode(t, w, &body)
	assert.Equal(t, apperr.CodeRoleForbidden, body.Error)

	w = h.do(http.MethodPost, "/api/admin/bills", token(t, "v-1", auth.RoleVendor), []byte(`{}`))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreatePayment(t *testing.T) {
	h := newHarness(t)
	h.payments.checkout = payments.Checkout{CheckoutURL: "https://pay.example/c", OrderCode: 1011}

	w := h.do(http.MethodPost, "/api/orders/o-1/payment", token(t, "c-1", auth.RoleCustomer), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "c-1", h.payments.createdBy)
	var co payments.Checkout
	decode(t, w, &co)
	assert.Equal(t, int64(1011), co.OrderCode)

	h.payments.checkout.Reused = true
	w = h.do(http.MethodPost, "/api/orders/o-1/payment", token(t, "c-1", auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePayment_ServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Conflict(apperr.CodeOrderAlreadyPaid, "paid"), http.StatusConflict, apperr.CodeOrderAlreadyPaid},
		{apperr.Forbidden(apperr.CodeNotOrderOwner, "owner"), http.StatusForbidden, apperr.CodeNotOrderOwner},
		{apperr.NotFound(apperr.CodeOrderNotFound, "missing"), http.StatusNotFound, apperr.CodeOrderNotFound},
		{apperr.Gateway(assert.AnError, "down"), http.StatusBadGateway, apperr.CodeGateway},
		{assert.AnError, http.StatusInternalServerError, apperr.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t)
			h.payments.err = tc.err
			w := h.do(http.MethodPost, "/api/orders/o-1/payment", token(t, "c-1", auth.RoleCustomer), nil)
			assert.Equal(t, tc.status, w.Code)
			var body apperr.Body
			decode(t, w, &body)
			assert.Equal(t, tc.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestPaymentStatus_VendorAllowed(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/orders/o-9/payment", token(t, "v-1", auth.RoleVendor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view payments.StatusView
	decode(t, w, &view)
	assert.Equal(t, "o-9", view.OrderID)
	assert.True(t, view.Degraded)
}

func TestSelectPaymentMethod_Validation(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "c-1", auth.RoleCustomer)

	w := h.do(http.MethodPut, "/api/orders/o-1/payment-method", tok, []byte(`{"paymentMethod":"CARD"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body apperr.Body
	decode(t, w, &body)
	assert.Equal(t, apperr.CodeInvalidRequest, body.Error)
	assert.Equal(t, "oneof", body.Fields["paymentMethod"])

	w = h.do(http.MethodPut, "/api/orders/o-1/payment-method", tok, []byte(`{"paymentMethod":"QRCODE"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orders.MethodQRCode, h.orders.method)
}

func TestAdvanceOrder(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "v-1", auth.RoleVendor)

	w := h.do(http.MethodPost, "/api/vendor/orders/o-1/advance", tok, []byte(`{"event":"PAYMENT_SUCCEEDED"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/vendor/orders/o-1/advance", tok, []byte(`{"event":"CONFIRM"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orders.EventConfirm, h.orders.advanced)

	h.orders.err = apperr.Conflict(apperr.CodeInvalidTransition, "bad")
	w = h.do(http.MethodPost, "/api/vendor/orders/o-1/advance", tok, []byte(`{"event":"PICK_UP"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRevenueAndBills(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "v-1", auth.RoleVendor)

	w := h.do(http.MethodGet, "/api/vendor/revenue", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.billing.revenue = billing.Revenue{AmountPayableToVendor: 82000}
	w = h.do(http.MethodGet, "/api/vendor/revenue?month=1&year=2025", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rev billing.Revenue
	decode(t, w, &rev)
	assert.Equal(t, "v-1", rev.VendorID)
	assert.Equal(t, int64(82000), rev.AmountPayableToVendor)

	w = h.do(http.MethodGet, "/api/vendor/bills?page=2&limit=5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page billing.BillPage
	decode(t, w, &page)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 5, page.Limit)

	w = h.do(http.MethodGet, "/api/vendor/bills?month=3", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateBill_Conflict(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "admin", auth.RoleAdmin)
	existing := &billing.Bill{VendorID: "v-1", Period: "2025-01", TotalQRCode: 100000, QRCodeCommission: 10000}
	h.billing.err = &billing.ConflictError{Err: apperr.Conflict(apperr.CodeBillExists, "exists"), Bill: existing}

	w := h.do(http.MethodPost, "/api/admin/bills", tok, []byte(`{"vendorId":"v-1","month":1,"year":2025}`))
	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error string           `json:"error"`
		Bill  billing.BillView `json:"bill"`
	}
	decode(t, w, &body)
	assert.Equal(t, apperr.CodeBillExists, body.Error)
	assert.Equal(t, "2025-01", body.Bill.Period)
	assert.Equal(t, existing.NetPayable(), body.Bill.NetPayable)
}

func TestGenerateBill_Created(t *testing.T) {
	h := newHarness(t)
	h.billing.bill = &billing.Bill{VendorID: "v-1", Period: "2025-01"}
	w := h.do(http.MethodPost, "/api/admin/bills", token(t, "admin", auth.RoleAdmin), []byte(`{"vendorId":"v-1","month":1,"year":2025}`))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/api/admin/bills/v-1/2025-01/pay", token(t, "admin", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurchasePremium(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/vendor/premium", token(t, "v-1", auth.RoleVendor), []byte(`{"packageId":"gold"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	var p premium.Purchase
	decode(t, w, &p)
	assert.Equal(t, "gold", p.Package.PackageID)
}

func TestPayosWebhook(t *testing.T) {
	raw := []byte(`{"code":"00","data":{"orderCode":1011},"signature":"abc"}`)

	t.Run("applied", func(t *testing.T) {
		h := newHarness(t)
		h.payments.result = payments.ReconcileResult{Outcome: payments.OutcomePaid, OrderCode: 1011}
		w := h.do(http.MethodPost, "/api/webhooks/payos", "", raw)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"reason":"PAID"}`, w.Body.String())
		require.Len(t, h.payments.webhooks, 1)
		assert.Equal(t, raw, h.payments.webhooks[0])
	})

	t.Run("redelivery", func(t *testing.T) {
		h := newHarness(t)
		h.payments.result = payments.ReconcileResult{Outcome: payments.OutcomeAlreadyApplied, OrderCode: 1011}
		w := h.do(http.MethodPost, "/api/webhooks/payos", "", raw)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"reason":"ALREADY_APPLIED"}`, w.Body.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		h := newHarness(t)
		h.payments.result = payments.ReconcileResult{Outcome: payments.OutcomeInvalidSignature}
		h.payments.err = apperr.E(apperr.KindInvalidSignature, apperr.CodeInvalidSignature, "bad")
		w := h.do(http.MethodPost, "/api/webhooks/payos", "", raw)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"reason":"INVALID_SIGNATURE"}`, w.Body.String())
	})

	t.Run("unknown code", func(t *testing.T) {
		h := newHarness(t)
		h.payments.result = payments.ReconcileResult{Outcome: payments.OutcomeUnknownOrderCode, OrderCode: 999}
		h.payments.err = apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "unknown")
		w := h.do(http.MethodPost, "/api/webhooks/payos", "", raw)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("registration check", func(t *testing.T) {
		h := newHarness(t)
		h.payments.result = payments.ReconcileResult{Outcome: payments.OutcomeUnknownOrderCode, OrderCode: registrationOrderCode}
		h.payments.err = apperr.E(apperr.KindUnknownOrderCode, apperr.CodeUnknownOrderCode, "unknown")
		w := h.do(http.MethodPost, "/api/webhooks/payos", "", raw)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"reason":"registration"}`, w.Body.String())
	})
}
