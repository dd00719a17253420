package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/logging"
	"github.com/imrishuroy/laundry-payflow/internal/payments"
)

// registrationOrderCode is what the gateway sends when a webhook URL is registered.
const registrationOrderCode = 123

type webhookResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

func (h *api) createPayment(c *gin.Context) {
	co, err := h.cfg.Payments.CreatePayment(c.Request.Context(), principal(c).UserID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if co.Reused {
		status = http.StatusOK
	}
	c.JSON(status, co)
}

func (h *api) cancelPayment(c *gin.Context) {
	if err := h.cfg.Payments.CancelPayment(c.Request.Context(), principal(c).UserID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "status": payments.LinkCancelled})
}

func (h *api) paymentStatus(c *gin.Context) {
	view, err := h.cfg.Payments.PaymentStatus(c.Request.Context(), principal(c).UserID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// payosWebhook hands the untouched body to the verifier. The gateway only
// looks at the status code: 2xx stops its retries.
func (h *api) payosWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, webhookResponse{Reason: apperr.CodeInvalidRequest})
		return
	}

	res, err := h.cfg.Payments.Reconcile(c.Request.Context(), raw)
	entry := logging.FromContext(c, h.cfg.Logger).WithFields(log.Fields{
		"order_code": res.OrderCode,
		"outcome":    res.Outcome,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindUnknownOrderCode) && res.OrderCode == registrationOrderCode {
			entry.Info("webhook registration check")
			c.JSON(http.StatusOK, webhookResponse{Success: true, Reason: "registration"})
			return
		}
		_ = c.Error(err)
		entry.WithError(err).Warn("webhook rejected")
		reason := string(res.Outcome)
		if reason == "" {
			reason = apperr.CodeOf(err)
		}
		c.JSON(apperr.HTTPStatus(apperr.KindOf(err)), webhookResponse{Reason: reason})
		return
	}
	c.JSON(http.StatusOK, webhookResponse{Success: true, Reason: string(res.Outcome)})
}
