package service

import (
	"context"
	"fmt"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryClient reads current stock levels, using the cached ledger
// snapshot when available and the ledger itself otherwise.
type InventoryClient struct {
	store  ProductStore
	cache  StockCache
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client. cache may be nil.
func NewInventoryClient(store ProductStore, cache StockCache) *InventoryClient {
	return &InventoryClient{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// StockLevel is a product's stock as of a ledger version.
type StockLevel struct {
	ProductID string
	Total     int
	Version   int
}

// CurrentStock returns the product's stock (fast path via the snapshot cache)
func (ic *InventoryClient) CurrentStock(ctx context.Context, productID string) (StockLevel, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.CurrentStock",
		attribute.String("product_id", productID))
	defer span.End()

	if ic.cache != nil {
		total, version, found, err := ic.cache.GetStockSnapshot(ctx, productID)
		switch {
		case err != nil:
			util.StockCacheLookupsTotal.WithLabelValues("error").Inc()
			ic.logger.Warn("Stock cache lookup failed, falling back to ledger",
				zap.String("product_id", productID),
				zap.Error(err))
		case found:
			util.StockCacheLookupsTotal.WithLabelValues("hit").Inc()
			return StockLevel{ProductID: productID, Total: total, Version: version}, nil
		default:
			util.StockCacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	last, err := ic.store.GetLastStockEvent(ctx, productID)
	if err != nil {
		util.RecordError(span, err)
		return StockLevel{}, fmt.Errorf("failed to get last stock event: %w", err)
	}
	if last == nil {
		return StockLevel{}, apperr.NotFound("stock for product " + productID)
	}

	ic.storeSnapshot(ctx, last.ProductID, last.Version, last.TotalAfterChange)
	return StockLevel{ProductID: productID, Total: last.TotalAfterChange, Version: last.Version}, nil
}

// ApplyStockChanged projects a consumed ledger event into the cache.
func (ic *InventoryClient) ApplyStockChanged(ctx context.Context, event *models.StockChangedEvent) error {
	return ic.applySnapshot(ctx, event.EventType, event.ProductID, event.Version, event.TotalAfterChange)
}

// ApplyProductCreated seeds the cache with a new product's opening stock.
func (ic *InventoryClient) ApplyProductCreated(ctx context.Context, event *models.ProductCreatedEvent) error {
	return ic.applySnapshot(ctx, event.EventType, event.ProductID, event.StockVersion, event.InitialStock)
}

func (ic *InventoryClient) applySnapshot(ctx context.Context, eventType, productID string, version, total int) error {
	if ic.cache == nil {
		return nil
	}

	applied, err := ic.cache.SetStockSnapshot(ctx, productID, version, total)
	if err != nil {
		return fmt.Errorf("failed to set stock snapshot: %w", err)
	}

	util.EventsProjectedTotal.WithLabelValues(eventType, fmt.Sprintf("%t", applied)).Inc()
	if !applied {
		ic.logger.Debug("Stale stock snapshot ignored",
			zap.String("product_id", productID),
			zap.Int("version", version))
	}
	return nil
}

func (ic *InventoryClient) storeSnapshot(ctx context.Context, productID string, version, total int) {
	if ic.cache == nil {
		return
	}
	if _, err := ic.cache.SetStockSnapshot(ctx, productID, version, total); err != nil {
		ic.logger.Warn("Failed to refresh stock snapshot",
			zap.String("product_id", productID),
			zap.Error(err))
	}
}
