// Package payos is the adapter for the QR payment gateway: link creation,
// status lookup, cancellation and webhook verification.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const maxDescriptionLen = 25

// GatewayError is any failed exchange with the gateway: transport, HTTP status
// or a non-success response code.
type GatewayError struct {
	Op     string
	Status int
	Code   string
	Desc   string
	Err    error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("payos ")
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": http %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": code %s %s", e.Code, e.Desc)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Client talks to the gateway's merchant API. Construct one per credential set.
type Client struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
	HTTP        *http.Client
}

// New builds a client whose every call is bounded by timeout.
func New(clientID, apiKey, checksumKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		ClientID:    clientID,
		APIKey:      apiKey,
		ChecksumKey: checksumKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// CreatePaymentLink registers a checkout session and returns its URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentRequest) (CheckoutResult, error) {
	if req.OrderCode <= 0 {
		return CheckoutResult{}, errors.New("payos: order code must be positive")
	}
	if req.Amount <= 0 {
		return CheckoutResult{}, errors.New("payos: amount must be positive")
	}
	desc := truncate(req.Description, maxDescriptionLen)

	body := createRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: desc,
		Items:       req.Items,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
		Signature:   Sign(c.ChecksumKey, paymentRequestString(req.Amount, req.CancelURL, desc, req.OrderCode, req.ReturnURL)),
	}
	if req.ExpiredAt != nil {
		body.ExpiredAt = req.ExpiredAt.Unix()
	}

	var out CheckoutResult
	if err := c.do(ctx, "create", http.MethodPost, "/v2/payment-requests", body, &out); err != nil {
		return CheckoutResult{}, err
	}
	if out.CheckoutURL == "" {
		return CheckoutResult{}, &GatewayError{Op: "create", Err: errors.New("missing checkoutUrl")}
	}
	return out, nil
}

// GetPaymentStatus fetches the gateway's view of a link by order code.
func (c *Client) GetPaymentStatus(ctx context.Context, orderCode int64) (StatusSnapshot, error) {
	var out StatusSnapshot
	path := "/v2/payment-requests/" + strconv.FormatInt(orderCode, 10)
	if err := c.do(ctx, "status", http.MethodGet, path, nil, &out); err != nil {
		return StatusSnapshot{}, err
	}
	return out, nil
}

// CancelPaymentLink closes a link so it can no longer be paid.
func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	path := "/v2/payment-requests/" + strconv.FormatInt(orderCode, 10) + "/cancel"
	return c.do(ctx, "cancel", http.MethodPost, path, cancelRequest{CancellationReason: reason}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "payos %s: marshal request", op)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "payos %s: build request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.ClientID)
	req.Header.Set("x-api-key", c.APIKey)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	if env.Code != SuccessCode {
		return &GatewayError{Op: op, Status: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode data")}
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
