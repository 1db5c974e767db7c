package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductService handles product, stock and pricing use cases
type ProductService struct {
	store     ProductStore
	publisher EventPublisher
	retry     RetryPolicy
	cache     StockCache
	now       func() time.Time
	logger    *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store ProductStore, publisher EventPublisher, retry RetryPolicy) *ProductService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ProductService{
		store:     store,
		publisher: publisher,
		retry:     retry,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// WithStockCache makes successful ledger writes refresh the stock snapshot.
func (s *ProductService) WithStockCache(cache StockCache) *ProductService {
	s.cache = cache
	return s
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// CreateProduct records a product together with its opening ledger entry.
func (s *ProductService) CreateProduct(ctx context.Context, req CreateProductRequest) (models.Product, models.StockEvent, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if !req.Price.IsPositive() {
		return models.Product{}, models.StockEvent{}, apperr.InvalidParameter("price must be greater than 0.")
	}
	if req.Stock < 0 {
		return models.Product{}, models.StockEvent{}, apperr.InvalidParameter("stock must be non-negative.")
	}

	product, err := models.NewProduct(req.Name, req.Description, req.Price)
	if err != nil {
		return models.Product{}, models.StockEvent{}, err
	}
	stock, err := models.NewStockEvent(product.ID, req.Stock, req.Stock, 1)
	if err != nil {
		return models.Product{}, models.StockEvent{}, err
	}

	product, stock, err = s.store.CreateProduct(ctx, product, stock)
	if err != nil {
		util.RecordError(span, err)
		return models.Product{}, models.StockEvent{}, fmt.Errorf("failed to create product: %w", err)
	}

	s.refreshSnapshot(ctx, stock)
	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.Int("stock", stock.TotalAfterChange))

	publish(s.logger, models.EventTypeProductCreated, func() error {
		return s.publisher.PublishProductCreated(ctx, models.NewProductCreatedEvent(product, stock))
	})

	return product, stock, nil
}

// UpdateStock appends a ledger entry applying change to the product's latest
// total. A lost race on the next version is retried per the retry policy.
func (s *ProductService) UpdateStock(ctx context.Context, productID string, change int) (models.StockEvent, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateStock",
		attribute.String("product_id", productID),
		attribute.Int("change", change))
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockUpdateLatency.Observe(time.Since(start).Seconds())
	}()

	var attempts int
	event, err := backoff.Retry(ctx, func() (models.StockEvent, error) {
		attempts++
		event, err := s.appendStockEvent(ctx, productID, change)
		if err == nil {
			return event, nil
		}
		if errors.Is(err, apperr.ErrOptimisticLock) {
			util.StockUpdateConflictsTotal.Inc()
			s.logger.Warn("Stock ledger version conflict",
				zap.String("product_id", productID),
				zap.Int("attempt", attempts))
			return models.StockEvent{}, err
		}
		return models.StockEvent{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(s.retry.backOff()),
		backoff.WithMaxTries(s.retry.attempts()),
	)
	util.StockUpdateAttempts.Observe(float64(attempts))

	// MaxTries can stop the loop before Retry unwraps a permanent error.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil {
		util.StockUpdatesTotal.WithLabelValues(stockUpdateResult(err)).Inc()
		util.RecordError(span, err)
		return models.StockEvent{}, err
	}

	util.StockUpdatesTotal.WithLabelValues("success").Inc()
	s.refreshSnapshot(ctx, event)
	s.logger.Info("Stock updated",
		zap.String("product_id", productID),
		zap.Int("change", change),
		zap.Int("total", event.TotalAfterChange),
		zap.Int("version", event.Version))

	publish(s.logger, models.EventTypeStockChanged, func() error {
		return s.publisher.PublishStockChanged(ctx, models.NewStockChangedEvent(event))
	})

	return event, nil
}

// refreshSnapshot writes event through to the stock cache. A failed write
// leaves the previous snapshot until its TTL expires.
func (s *ProductService) refreshSnapshot(ctx context.Context, event models.StockEvent) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.SetStockSnapshot(ctx, event.ProductID, event.Version, event.TotalAfterChange); err != nil {
		s.logger.Warn("Failed to write stock snapshot",
			zap.String("product_id", event.ProductID),
			zap.Int("version", event.Version),
			zap.Error(err))
	}
}

// appendStockEvent is one read-compute-write pass over the ledger.
func (s *ProductService) appendStockEvent(ctx context.Context, productID string, change int) (models.StockEvent, error) {
	last, err := s.store.GetLastStockEvent(ctx, productID)
	if err != nil {
		return models.StockEvent{}, fmt.Errorf("failed to get last stock event: %w", err)
	}
	if last == nil {
		return models.StockEvent{}, apperr.Service("stock event not found.")
	}

	total := last.TotalAfterChange + change
	if total < 0 {
		return models.StockEvent{}, apperr.InvalidStockChange(fmt.Sprintf("insufficient stock for product %s.", productID))
	}

	next, err := models.NewStockEvent(productID, change, total, last.Version+1)
	if err != nil {
		return models.StockEvent{}, err
	}
	return s.store.CreateProductStockEvent(ctx, next)
}

func stockUpdateResult(err error) string {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return "error"
	}
	switch kind {
	case apperr.KindInvalidStockChange:
		return "insufficient_stock"
	case apperr.KindOptimisticLock:
		return "conflict_exhausted"
	default:
		return string(kind)
	}
}

// maxListOffset bounds (page_index-1)*page_size.
const maxListOffset = math.MaxInt32

// ProductQuery selects one page of the product listing.
type ProductQuery struct {
	Name      string
	PageSize  int
	PageIndex int
}

// ListProducts validates q and returns a lazy, single-use sequence of priced
// products in store order. The store is queried when the sequence is ranged.
func (s *ProductService) ListProducts(ctx context.Context, q ProductQuery) (iter.Seq2[models.ProductListing, error], error) {
	if q.PageSize <= 0 {
		return nil, apperr.InvalidParameter("page_size must be positive.")
	}
	if q.PageIndex <= 0 {
		return nil, apperr.InvalidParameter("page_index must be positive.")
	}
	if q.PageIndex-1 > maxListOffset/q.PageSize {
		return nil, apperr.InvalidParameter("page_index is too large.")
	}

	var consumed atomic.Bool
	return func(yield func(models.ProductListing, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(models.ProductListing{}, apperr.Service("product listing already consumed."))
			return
		}

		ctx, span := util.StartSpan(ctx, "ProductService.ListProducts",
			attribute.Int("page_size", q.PageSize),
			attribute.Int("page_index", q.PageIndex))
		defer span.End()

		rows, err := s.store.GetProducts(ctx, q.Name, q.PageSize, q.PageIndex)
		if err != nil {
			util.RecordError(span, err)
			yield(models.ProductListing{}, fmt.Errorf("failed to get products: %w", err))
			return
		}

		for _, row := range rows {
			amount, err := CalcProductDiscount(row.Product, row.Discounts)
			if err != nil {
				yield(models.ProductListing{}, err)
				return
			}
			listing := models.ProductListing{
				Product:               row.Product,
				ProductDiscountAmount: amount,
				TotalAmount:           row.Product.Price.Sub(amount),
				StockCount:            row.StockCount,
			}
			if !yield(listing, nil) {
				return
			}
		}
	}, nil
}

// GetProductWithCouponDiscount prices a product for userID: the best product
// discount first, then the user's best usable coupon on what remains.
func (s *ProductService) GetProductWithCouponDiscount(ctx context.Context, userID, productID string) (models.ProductWithDiscountInfo, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProductWithCouponDiscount",
		attribute.String("product_id", productID))
	defer span.End()

	product, discounts, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		util.RecordError(span, err)
		return models.ProductWithDiscountInfo{}, fmt.Errorf("failed to get product: %w", err)
	}

	productDiscount, err := CalcProductDiscount(product, discounts)
	if err != nil {
		return models.ProductWithDiscountInfo{}, err
	}

	couponDiscount := decimal.Zero
	if isKnownUser(userID) {
		coupons, err := s.store.GetCoupons(ctx, userID)
		if err != nil {
			util.RecordError(span, err)
			return models.ProductWithDiscountInfo{}, fmt.Errorf("failed to get coupons: %w", err)
		}
		if best := bestCoupon(coupons, s.now()); best != nil {
			couponDiscount = models.PercentOf(product.Price.Sub(productDiscount), best.DiscountPercentage)
			span.SetAttributes(attribute.String("coupon_id", best.ID))
		}
	}

	return models.ProductWithDiscountInfo{
		Product:               product,
		ProductDiscountAmount: productDiscount,
		CuponDiscountAmount:   couponDiscount,
		FinalPrice:            product.Price.Sub(productDiscount).Sub(couponDiscount),
	}, nil
}

func isKnownUser(userID string) bool {
	return userID != "" && userID != models.AnonymousUserID
}

// bestCoupon picks the usable coupon with the highest percentage. Ties go to
// the coupon expiring soonest, then to the smallest id.
func bestCoupon(coupons []models.Coupon, now time.Time) *models.Coupon {
	var best *models.Coupon
	for i := range coupons {
		c := &coupons[i]
		if !c.UsableAt(now) {
			continue
		}
		if best == nil || betterCoupon(c, best) {
			best = c
		}
	}
	return best
}

func betterCoupon(c, than *models.Coupon) bool {
	if cmp := c.DiscountPercentage.Cmp(than.DiscountPercentage); cmp != 0 {
		return cmp > 0
	}
	if !c.ValidTo.Equal(than.ValidTo) {
		return c.ValidTo.Before(than.ValidTo)
	}
	return c.ID < than.ID
}

// publish runs fn and logs failures; events never fail the write they follow.
func publish(logger *zap.Logger, eventType string, fn func() error) {
	if err := fn(); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
		logger.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
