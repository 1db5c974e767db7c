package service

import (
	"commerce-service/internal/apperr"
	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
)

// CalcProductDiscount returns the discount amount for product: price times the
// highest active percentage. Discounts do not stack.
func CalcProductDiscount(product models.Product, discounts []models.Discount) (decimal.Decimal, error) {
	for _, d := range discounts {
		if d.ProductID != product.ID {
			return decimal.Zero, apperr.Service("Product and Discount do not match.")
		}
	}

	var (
		best  decimal.Decimal
		found bool
	)
	for _, d := range discounts {
		if !d.Active {
			continue
		}
		if !found || d.Percentage.GreaterThan(best) {
			best = d.Percentage
			found = true
		}
	}
	if !found {
		return decimal.Zero, nil
	}

	return models.PercentOf(product.Price, best), nil
}
