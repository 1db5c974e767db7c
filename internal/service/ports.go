package service

import (
	"context"

	"commerce-service/internal/models"
)

// ProductStore is the persistence port the use cases depend on.
//
// CreateProductStockEvent must report a duplicate (product_id, version) as an
// error matching apperr.ErrOptimisticLock, distinct from any other failure.
// CreateProduct and CreateProductDiscount are single all-or-nothing
// operations.
type ProductStore interface {
	CreateProduct(ctx context.Context, product models.Product, stock models.StockEvent) (models.Product, models.StockEvent, error)
	CreateProductStockEvent(ctx context.Context, event models.StockEvent) (models.StockEvent, error)
	// GetLastStockEvent returns nil, nil when the product has no ledger.
	GetLastStockEvent(ctx context.Context, productID string) (*models.StockEvent, error)
	CreateProductDiscount(ctx context.Context, discount models.Discount, deactivateOthers bool) (models.Discount, error)
	CreateCoupon(ctx context.Context, coupon models.Coupon) (models.Coupon, error)
	// GetProducts returns one page (1-based) ordered by id, with active
	// discounts and the latest ledger total.
	GetProducts(ctx context.Context, nameFilter string, pageSize, pageIndex int) ([]models.ProductStock, error)
	// GetProduct returns the product and its active discounts.
	GetProduct(ctx context.Context, productID string) (models.Product, []models.Discount, error)
	GetCoupons(ctx context.Context, userID string) ([]models.Coupon, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// EventPublisher publishes domain events after successful writes.
type EventPublisher interface {
	PublishProductCreated(ctx context.Context, event *models.ProductCreatedEvent) error
	PublishStockChanged(ctx context.Context, event *models.StockChangedEvent) error
	PublishDiscountUpserted(ctx context.Context, event *models.DiscountUpsertedEvent) error
	PublishCouponIssued(ctx context.Context, event *models.CouponIssuedEvent) error
}

// StockCache holds the latest ledger snapshot per product.
type StockCache interface {
	GetStockSnapshot(ctx context.Context, productID string) (total, version int, found bool, err error)
	SetStockSnapshot(ctx context.Context, productID string, version, total int) (bool, error)
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishProductCreated(context.Context, *models.ProductCreatedEvent) error {
	return nil
}

func (NopPublisher) PublishStockChanged(context.Context, *models.StockChangedEvent) error {
	return nil
}

func (NopPublisher) PublishDiscountUpserted(context.Context, *models.DiscountUpsertedEvent) error {
	return nil
}

func (NopPublisher) PublishCouponIssued(context.Context, *models.CouponIssuedEvent) error {
	return nil
}
