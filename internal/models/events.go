package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeProductCreated   = "PRODUCT_CREATED"
	EventTypeStockChanged     = "STOCK_CHANGED"
	EventTypeDiscountUpserted = "DISCOUNT_UPSERTED"
	EventTypeCouponIssued     = "COUPON_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func newBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ProductCreatedEvent published when a product and its opening stock are recorded
type ProductCreatedEvent struct {
	BaseEvent
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initial_stock"`
	StockVersion int             `json:"stock_version"`
}

func NewProductCreatedEvent(p Product, stock StockEvent) *ProductCreatedEvent {
	return &ProductCreatedEvent{
		BaseEvent:    newBaseEvent(EventTypeProductCreated),
		ProductID:    p.ID,
		Name:         p.Name,
		Price:        p.Price,
		InitialStock: stock.TotalAfterChange,
		StockVersion: stock.Version,
	}
}

// StockChangedEvent published when a ledger entry is appended
type StockChangedEvent struct {
	BaseEvent
	ProductID        string `json:"product_id"`
	StockEventID     string `json:"stock_event_id"`
	Change           int    `json:"change"`
	TotalAfterChange int    `json:"total_after_change"`
	Version          int    `json:"version"`
}

func NewStockChangedEvent(e StockEvent) *StockChangedEvent {
	return &StockChangedEvent{
		BaseEvent:        newBaseEvent(EventTypeStockChanged),
		ProductID:        e.ProductID,
		StockEventID:     e.ID,
		Change:           e.Change,
		TotalAfterChange: e.TotalAfterChange,
		Version:          e.Version,
	}
}

// DiscountUpsertedEvent published when a product's active discount is replaced
type DiscountUpsertedEvent struct {
	BaseEvent
	DiscountID string          `json:"discount_id"`
	ProductID  string          `json:"product_id"`
	Percentage decimal.Decimal `json:"percentage"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
}

func NewDiscountUpsertedEvent(d Discount) *DiscountUpsertedEvent {
	return &DiscountUpsertedEvent{
		BaseEvent:  newBaseEvent(EventTypeDiscountUpserted),
		DiscountID: d.ID,
		ProductID:  d.ProductID,
		Percentage: d.Percentage,
		StartDate:  d.StartDate,
		EndDate:    d.EndDate,
	}
}

// CouponIssuedEvent published when a coupon is created for a user
type CouponIssuedEvent struct {
	BaseEvent
	CouponID           string          `json:"coupon_id"`
	UserID             string          `json:"user_id"`
	Code               string          `json:"code"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	ValidTo            time.Time       `json:"valid_to"`
}

func NewCouponIssuedEvent(c Coupon) *CouponIssuedEvent {
	return &CouponIssuedEvent{
		BaseEvent:          newBaseEvent(EventTypeCouponIssued),
		CouponID:           c.ID,
		UserID:             c.UserID,
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		ValidTo:            c.ValidTo,
	}
}
