package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/validation"
)

func (h *api) listBills(c *gin.Context) {
	var q validation.ListBillsQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		fail(c, err)
		return
	}
	page, err := h.cfg.Billing.ListBills(c.Request.Context(), principal(c).UserID, q.Page, q.Limit, q.Month, q.Year)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *api) revenue(c *gin.Context) {
	var q validation.RevenueQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		fail(c, err)
		return
	}
	r, err := h.cfg.Billing.ComputeRevenue(c.Request.Context(), principal(c).UserID, q.Month, q.Year)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *api) purchasePremium(c *gin.Context) {
	var req validation.PurchasePremiumRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	p, err := h.cfg.Premium.Purchase(c.Request.Context(), principal(c).UserID, req.PackageID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *api) listPremium(c *gin.Context) {
	vps, err := h.cfg.Premium.ListForVendor(c.Request.Context(), principal(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": vps})
}

func (h *api) generateBill(c *gin.Context) {
	var req validation.GenerateBillRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	b, err := h.cfg.Billing.GenerateBill(c.Request.Context(), req.VendorID, req.Month, req.Year)
	var conflict *billing.ConflictError
	if errors.As(err, &conflict) {
		_ = c.Error(err)
		status, body := apperr.Response(err, c.GetHeader("Accept-Language"))
		c.JSON(status, gin.H{"error": body.Error, "message": body.Message, "bill": billing.BillView{Bill: *conflict.Bill, NetPayable: conflict.Bill.NetPayable()}})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, billing.BillView{Bill: *b, NetPayable: b.NetPayable()})
}

func (h *api) markBillPaid(c *gin.Context) {
	b, err := h.cfg.Billing.MarkPaid(c.Request.Context(), c.Param("vendorId"), c.Param("period"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, billing.BillView{Bill: *b, NetPayable: b.NetPayable()})
}
