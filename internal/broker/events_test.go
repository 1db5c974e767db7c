package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"commerce-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleMessageRoutesStockChanged(t *testing.T) {
	h := NewEventHandler()
	var got *models.StockChangedEvent
	h.OnStockChanged(func(_ context.Context, e *models.StockChangedEvent) error {
		got = e
		return nil
	})

	event := models.NewStockChangedEvent(models.StockEvent{ID: "s1", ProductID: "p1", Change: -2, TotalAfterChange: 8, Version: 3})
	require.NoError(t, h.HandleMessage(context.Background(), message(t, event)))

	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, 8, got.TotalAfterChange)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, event.EventID, got.EventID)
}

func TestHandleMessageRoutesProductCreated(t *testing.T) {
	h := NewEventHandler()
	var got *models.ProductCreatedEvent
	h.OnProductCreated(func(_ context.Context, e *models.ProductCreatedEvent) error {
		got = e
		return nil
	})

	product := models.Product{ID: "p9", Name: "Chair", Price: decimal.RequireFromString("12.50")}
	event := models.NewProductCreatedEvent(product, models.StockEvent{ProductID: "p9", TotalAfterChange: 4, Version: 1})
	require.NoError(t, h.HandleMessage(context.Background(), message(t, event)))

	require.NotNil(t, got)
	assert.Equal(t, 4, got.InitialStock)
	assert.True(t, got.Price.Equal(product.Price))
}

func TestHandleMessageSkipsUnhandledTypes(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnStockChanged(func(context.Context, *models.StockChangedEvent) error {
		called = true
		return nil
	})

	coupon := models.NewCouponIssuedEvent(models.Coupon{ID: "c1", UserID: "42"})
	assert.NoError(t, h.HandleMessage(context.Background(), message(t, coupon)))

	// Registered type without handler is also acknowledged.
	created := models.NewProductCreatedEvent(models.Product{ID: "p1"}, models.StockEvent{Version: 1})
	assert.NoError(t, h.HandleMessage(context.Background(), message(t, created)))
	assert.False(t, called)
}

func TestHandleMessageErrors(t *testing.T) {
	h := NewEventHandler()
	h.OnStockChanged(func(context.Context, *models.StockChangedEvent) error {
		return errors.New("cache down")
	})

	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)

	event := models.NewStockChangedEvent(models.StockEvent{ProductID: "p1", Version: 1})
	err = h.HandleMessage(context.Background(), message(t, event))
	assert.EqualError(t, err, "cache down")
}

func TestProductKey(t *testing.T) {
	assert.Equal(t, "product-abc", productKey("abc"))
}
