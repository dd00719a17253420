package payos

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChecksum = "checksum-key"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("client-id", "api-key", testChecksum, srv.URL, 2*time.Second)
}

func TestCreatePaymentLink_SignsRequest(t *testing.T) {
	var got createRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"code":"00","desc":"success","data":{"paymentLinkId":"pl-1","checkoutUrl":"https://pay.example/pl-1","orderCode":1234511,"amount":120000,"status":"PENDING"}}`)
	})

	res, err := c.CreatePaymentLink(context.Background(), PaymentRequest{
		OrderCode:   1234511,
		Amount:      120000,
		Description: "Thanh toan don hang giat say 0001",
		ReturnURL:   "https://shop/ok",
		CancelURL:   "https://shop/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/pl-1", res.CheckoutURL)
	assert.Equal(t, "pl-1", res.PaymentLinkID)

	assert.Len(t, []rune(got.Description), maxDescriptionLen)
	want := Sign(testChecksum, "amount=120000&cancelUrl=https://shop/cancel&description="+got.Description+"&orderCode=1234511&returnUrl=https://shop/ok")
	assert.Equal(t, want, got.Signature)
}

func TestCreatePaymentLink_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"http status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `unauthorized`)
		},
		"non-success code": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"code":"231","desc":"order code exists"}`)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			_, err := c.CreatePaymentLink(context.Background(), PaymentRequest{OrderCode: 11, Amount: 1, ReturnURL: "r", CancelURL: "c"})
			var gwErr *GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, "create", gwErr.Op)
		})
	}
}

func TestCreatePaymentLink_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := New("id", "key", testChecksum, srv.URL, 20*time.Millisecond)

	_, err := c.CreatePaymentLink(context.Background(), PaymentRequest{OrderCode: 11, Amount: 1})
	var gwErr *GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func TestCreatePaymentLink_RejectsBadInput(t *testing.T) {
	c := New("id", "key", testChecksum, "http://unused", time.Second)
	_, err := c.CreatePaymentLink(context.Background(), PaymentRequest{OrderCode: 11, Amount: 0})
	assert.Error(t, err)
	_, err = c.CreatePaymentLink(context.Background(), PaymentRequest{OrderCode: 0, Amount: 10})
	assert.Error(t, err)
}

func TestGetPaymentStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/payment-requests/1234511", r.URL.Path)
		_, _ = io.WriteString(w, `{"code":"00","desc":"success","data":{"id":"pl-1","orderCode":1234511,"amount":120000,"amountPaid":120000,"amountRemaining":0,"status":"PAID"}}`)
	})

	snap, err := c.GetPaymentStatus(context.Background(), 1234511)
	require.NoError(t, err)
	assert.Equal(t, "PAID", snap.Status)
	assert.Equal(t, int64(120000), snap.AmountPaid)
}

func TestCancelPaymentLink(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/1234511/cancel"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"code":"00","desc":"success","data":{"status":"CANCELLED"}}`)
	})

	require.NoError(t, c.CancelPaymentLink(context.Background(), 1234511, "customer cancelled"))
	assert.Equal(t, "customer cancelled", body["cancellationReason"])
}
