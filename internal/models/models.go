package models

import (
	"time"

	"commerce-service/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnonymousUserID identifies callers without an authenticated identity.
const AnonymousUserID = "anonymous"

var hundred = decimal.NewFromInt(100)

// NewID returns a time-ordered identifier (UUIDv7) so primary keys sort by
// creation time.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// NewProduct builds a product with a fresh id and timestamps.
func NewProduct(name, description string, price decimal.Decimal) (Product, error) {
	if !price.IsPositive() {
		return Product{}, apperr.InvalidParameter("price must be greater than 0.")
	}
	now := time.Now().UTC()
	return Product{
		ID:          NewID(),
		Name:        name,
		Description: description,
		Price:       price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// StockEvent is one append-only entry of a product's stock ledger.
type StockEvent struct {
	ID               string    `db:"id" json:"id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	Change           int       `db:"change" json:"change"`
	TotalAfterChange int       `db:"total_after_change" json:"total_after_change"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	Version          int       `db:"version" json:"version"`
}

func NewStockEvent(productID string, change, totalAfterChange, version int) (StockEvent, error) {
	if totalAfterChange < 0 {
		return StockEvent{}, apperr.InvalidStockChange("insufficient stock for product " + productID + ".")
	}
	if version < 1 {
		return StockEvent{}, apperr.Service("stock event version must be positive.")
	}
	return StockEvent{
		ID:               NewID(),
		ProductID:        productID,
		Change:           change,
		TotalAfterChange: totalAfterChange,
		CreatedAt:        time.Now().UTC(),
		Version:          version,
	}, nil
}

// Discount is a percentage price reduction for a single product.
type Discount struct {
	ID         string          `db:"id" json:"id"`
	ProductID  string          `db:"product_id" json:"product_id"`
	Percentage decimal.Decimal `db:"percentage" json:"percentage"`
	StartDate  time.Time       `db:"start_date" json:"start_date"`
	EndDate    time.Time       `db:"end_date" json:"end_date"`
	Active     bool            `db:"active" json:"active"`
}

// NewDiscount builds an active discount.
func NewDiscount(productID string, percentage decimal.Decimal, start, end time.Time) (Discount, error) {
	if err := validatePercentage("percentage", percentage); err != nil {
		return Discount{}, err
	}
	if end.Before(start) {
		return Discount{}, apperr.InvalidParameter("discount end_date must not be before start_date.")
	}
	return Discount{
		ID:         NewID(),
		ProductID:  productID,
		Percentage: percentage,
		StartDate:  start,
		EndDate:    end,
		Active:     true,
	}, nil
}

// Coupon is a user-owned percentage discount valid inside a time window.
type Coupon struct {
	ID                 string          `db:"id" json:"id"`
	UserID             string          `db:"user_id" json:"user_id"`
	Code               string          `db:"code" json:"code"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	ValidFrom          time.Time       `db:"valid_from" json:"valid_from"`
	ValidTo            time.Time       `db:"valid_to" json:"valid_to"`
	Active             bool            `db:"active" json:"active"`
}

// NewCoupon builds an active coupon.
func NewCoupon(userID, code string, percentage decimal.Decimal, validFrom, validTo time.Time) (Coupon, error) {
	if !validFrom.Before(validTo) {
		return Coupon{}, apperr.InvalidParameter("cupon valid period is invalid.")
	}
	if err := validatePercentage("discount_percentage", percentage); err != nil {
		return Coupon{}, err
	}
	return Coupon{
		ID:                 NewID(),
		UserID:             userID,
		Code:               code,
		DiscountPercentage: percentage,
		ValidFrom:          validFrom,
		ValidTo:            validTo,
		Active:             true,
	}, nil
}

// UsableAt reports whether the coupon is active and inside its window at t.
func (c Coupon) UsableAt(t time.Time) bool {
	return c.Active && !t.Before(c.ValidFrom) && !t.After(c.ValidTo)
}

// ProductStock is a product row as returned by listing queries.
type ProductStock struct {
	Product    Product
	Discounts  []Discount
	StockCount int
}

// ProductListing is one priced entry of a product page.
type ProductListing struct {
	Product               Product
	ProductDiscountAmount decimal.Decimal
	TotalAmount           decimal.Decimal
	StockCount            int
}

// ProductWithDiscountInfo is a product priced for a specific caller.
type ProductWithDiscountInfo struct {
	Product               Product
	ProductDiscountAmount decimal.Decimal
	CuponDiscountAmount   decimal.Decimal
	FinalPrice            decimal.Decimal
}

// PercentOf returns amount * pct / 100.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

func validatePercentage(field string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return apperr.InvalidParameter(field + " must be between 0 and 100.")
	}
	return nil
}
