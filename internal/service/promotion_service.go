package service

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PromotionService handles product discounts and user coupons
type PromotionService struct {
	store     ProductStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewPromotionService creates a new promotion service
func NewPromotionService(store ProductStore, publisher EventPublisher) *PromotionService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &PromotionService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// UpsertDiscountRequest represents a request to replace a product's discount
type UpsertDiscountRequest struct {
	ProductID  string
	Percentage decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
}

// UpsertProductDiscount makes a new discount the product's only active one.
func (s *PromotionService) UpsertProductDiscount(ctx context.Context, req UpsertDiscountRequest) (models.Discount, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.UpsertProductDiscount",
		attribute.String("product_id", req.ProductID))
	defer span.End()

	discount, err := models.NewDiscount(req.ProductID, req.Percentage, req.StartDate, req.EndDate)
	if err != nil {
		return models.Discount{}, err
	}

	discount, err = s.store.CreateProductDiscount(ctx, discount, true)
	if err != nil {
		util.RecordError(span, err)
		return models.Discount{}, fmt.Errorf("failed to create product discount: %w", err)
	}

	util.DiscountsUpsertedTotal.Inc()
	s.logger.Info("Product discount upserted",
		zap.String("product_id", discount.ProductID),
		zap.String("discount_id", discount.ID),
		zap.String("percentage", discount.Percentage.String()))

	publish(s.logger, models.EventTypeDiscountUpserted, func() error {
		return s.publisher.PublishDiscountUpserted(ctx, models.NewDiscountUpsertedEvent(discount))
	})

	return discount, nil
}

// CreateCouponRequest represents a request to issue a coupon
type CreateCouponRequest struct {
	UserID             string
	Code               string
	DiscountPercentage decimal.Decimal
	ValidFrom          time.Time
	ValidTo            time.Time
}

// CreateCoupon issues an active coupon to an existing user.
func (s *PromotionService) CreateCoupon(ctx context.Context, req CreateCouponRequest) (models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.CreateCoupon")
	defer span.End()

	if !req.ValidFrom.Before(req.ValidTo) {
		return models.Coupon{}, apperr.InvalidParameter("cupon valid period is invalid.")
	}

	exists, err := s.store.UserExists(ctx, req.UserID)
	if err != nil {
		util.RecordError(span, err)
		return models.Coupon{}, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return models.Coupon{}, apperr.InvalidParameter("user not found.")
	}

	coupon, err := models.NewCoupon(req.UserID, req.Code, req.DiscountPercentage, req.ValidFrom, req.ValidTo)
	if err != nil {
		return models.Coupon{}, err
	}

	coupon, err = s.store.CreateCoupon(ctx, coupon)
	if err != nil {
		util.RecordError(span, err)
		return models.Coupon{}, fmt.Errorf("failed to create coupon: %w", err)
	}

	util.CouponsIssuedTotal.Inc()
	s.logger.Info("Coupon issued",
		zap.String("coupon_id", coupon.ID),
		zap.String("user_id", coupon.UserID),
		zap.String("code", coupon.Code))

	publish(s.logger, models.EventTypeCouponIssued, func() error {
		return s.publisher.PublishCouponIssued(ctx, models.NewCouponIssuedEvent(coupon))
	})

	return coupon, nil
}
