package payos

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSignature = errors.New("payos: webhook signature mismatch")
	ErrMalformedWebhook = errors.New("payos: malformed webhook")
)

type webhookEnvelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// VerifyWebhook checks the signature of a raw webhook body against the checksum
// key and returns the decoded data. Nothing in the payload is trusted until the
// signature matches.
func (c *Client) VerifyWebhook(raw []byte) (WebhookData, error) {
	return VerifyWebhook(c.ChecksumKey, raw)
}

func VerifyWebhook(checksumKey string, raw []byte) (WebhookData, error) {
	// anyone can sign with an empty key
	if checksumKey == "" {
		return WebhookData{}, errors.Wrap(ErrInvalidSignature, "no checksum key configured")
	}
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return WebhookData{}, errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	if len(env.Data) == 0 || string(env.Data) == "null" || env.Signature == "" {
		return WebhookData{}, errors.Wrap(ErrMalformedWebhook, "missing data or signature")
	}

	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return WebhookData{}, errors.Wrap(ErrMalformedWebhook, err.Error())
	}

	want, err := SignData(checksumKey, fields)
	if err != nil {
		return WebhookData{}, errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	if !equalSignature(want, env.Signature) {
		return WebhookData{}, ErrInvalidSignature
	}

	var data WebhookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return WebhookData{}, errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	if data.Code == "" {
		data.Code = env.Code
		data.Desc = env.Desc
	}
	return data, nil
}

// BuildWebhook produces a signed webhook body. Used by tests and local tooling
// to simulate gateway callbacks.
func BuildWebhook(checksumKey string, data WebhookData) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	sig, err := SignData(checksumKey, fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(webhookEnvelope{
		Code:      SuccessCode,
		Desc:      "success",
		Success:   data.Success(),
		Data:      raw,
		Signature: sig,
	})
}
