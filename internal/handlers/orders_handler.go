package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/validation"
)

func (h *api) advanceOrder(c *gin.Context) {
	var req validation.AdvanceOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	o, err := h.cfg.Orders.Advance(c.Request.Context(), principal(c).UserID, c.Param("id"), orders.Event(req.Event))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) selectPaymentMethod(c *gin.Context) {
	var req validation.SelectPaymentMethodRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	o, err := h.cfg.Orders.SelectPaymentMethod(c.Request.Context(), principal(c).UserID, c.Param("id"), orders.PaymentMethod(req.Method))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) attachReview(c *gin.Context) {
	var req validation.AttachReviewRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	if err := h.cfg.Orders.AttachReview(c.Request.Context(), principal(c).UserID, c.Param("id"), req.ReviewID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "reviewId": req.ReviewID})
}
