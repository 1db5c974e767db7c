package api

import (
	"fmt"
	"net/http"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type upsertDiscountRequest struct {
	Percentage *decimal.Decimal `json:"percentage" binding:"required"`
}

type DiscountDTO struct {
	DiscountID string  `json:"discount_id"`
	ProductID  string  `json:"product_id"`
	Percentage float64 `json:"percentage"`
	IsActive   bool    `json:"is_active"`
}

type createCouponRequest struct {
	DiscountPercentage *decimal.Decimal `json:"discount_percentage" binding:"required"`
	Code               string           `json:"code"`
	ValidFrom          string           `json:"valid_from" binding:"required"`
	ValidTo            string           `json:"valid_to" binding:"required"`
}

type CouponDTO struct {
	CuponID            string  `json:"cupon_id"`
	UserID             string  `json:"user_id"`
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

// upsertDiscount replaces the product's active discount with one running
// from now for the configured window.
func (h *Handler) upsertDiscount(c *gin.Context) {
	var req upsertDiscountRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	now := h.now().UTC()
	discount, err := h.promotions.UpsertProductDiscount(c.Request.Context(), service.UpsertDiscountRequest{
		ProductID:  c.Param("id"),
		Percentage: *req.Percentage,
		StartDate:  now,
		EndDate:    now.Add(h.opts.DiscountWindow),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, DiscountDTO{
		DiscountID: discount.ID,
		ProductID:  discount.ProductID,
		Percentage: discount.Percentage.InexactFloat64(),
		IsActive:   discount.Active,
	})
}

func (h *Handler) createCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	validFrom, err := parseDateTime("valid_from", req.ValidFrom)
	if err != nil {
		h.respondError(c, err)
		return
	}
	validTo, err := parseDateTime("valid_to", req.ValidTo)
	if err != nil {
		h.respondError(c, err)
		return
	}

	code := req.Code
	if code == "" {
		code = fmt.Sprintf("COUPON_%d", h.now().Unix())
	}

	coupon, err := h.promotions.CreateCoupon(c.Request.Context(), service.CreateCouponRequest{
		UserID:             currentUser(c),
		Code:               code,
		DiscountPercentage: *req.DiscountPercentage,
		ValidFrom:          validFrom,
		ValidTo:            validTo,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CouponDTO{
		CuponID:            coupon.ID,
		UserID:             coupon.UserID,
		Code:               coupon.Code,
		DiscountPercentage: coupon.DiscountPercentage.InexactFloat64(),
	})
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDateTime accepts RFC 3339 and zone-less forms. Values without a zone
// are taken as UTC.
func parseDateTime(field, s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.InvalidParameter(fmt.Sprintf("%s has an invalid datetime format: %s", field, s))
}
