package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, m *MemoryStore, name string, stock int) models.Product {
	t.Helper()
	p, err := models.NewProduct(name, "", decimal.NewFromInt(1000))
	require.NoError(t, err)
	e, err := models.NewStockEvent(p.ID, stock, stock, 1)
	require.NoError(t, err)
	_, _, err = m.CreateProduct(context.Background(), p, e)
	require.NoError(t, err)
	return p
}

func TestMemoryPaging(t *testing.T) {
	m := NewMemoryStore()
	for i := 0; i < 25; i++ {
		seed(t, m, fmt.Sprintf("Item %02d", i), i)
	}
	ctx := context.Background()

	var sizes []int
	var seen []string
	for page := 1; page <= 4; page++ {
		rows, err := m.GetProducts(ctx, "", 10, page)
		require.NoError(t, err)
		sizes = append(sizes, len(rows))
		for _, r := range rows {
			seen = append(seen, r.Product.ID)
		}
	}

	assert.Equal(t, []int{10, 10, 5, 0}, sizes)
	assert.IsIncreasing(t, seen)
}

func TestMemoryNameFilterIsCaseInsensitive(t *testing.T) {
	m := NewMemoryStore()
	seed(t, m, "Red Chair", 1)
	seed(t, m, "Blue chair", 2)
	seed(t, m, "Table", 3)

	rows, err := m.GetProducts(context.Background(), "CHAIR", 30, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	all, err := m.GetProducts(context.Background(), "", 30, 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStockLedger(t *testing.T) {
	m := NewMemoryStore()
	p := seed(t, m, "Desk", 10)
	ctx := context.Background()

	next, err := models.NewStockEvent(p.ID, -4, 6, 2)
	require.NoError(t, err)
	_, err = m.CreateProductStockEvent(ctx, next)
	require.NoError(t, err)

	dup, err := models.NewStockEvent(p.ID, 1, 7, 2)
	require.NoError(t, err)
	_, err = m.CreateProductStockEvent(ctx, dup)
	assert.True(t, errors.Is(err, apperr.ErrOptimisticLock))

	last, err := m.GetLastStockEvent(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, last.Version)
	assert.Equal(t, 6, last.TotalAfterChange)

	rows, err := m.GetProducts(ctx, "", 30, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, rows[0].StockCount)

	missing, err := m.GetLastStockEvent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryDiscountDeactivation(t *testing.T) {
	m := NewMemoryStore()
	p := seed(t, m, "Lamp", 1)
	ctx := context.Background()
	now := time.Now()

	d1, err := models.NewDiscount(p.ID, decimal.NewFromInt(10), now, now.Add(time.Hour))
	require.NoError(t, err)
	d2, err := models.NewDiscount(p.ID, decimal.NewFromInt(20), now, now.Add(time.Hour))
	require.NoError(t, err)
	d3, err := models.NewDiscount(p.ID, decimal.NewFromInt(30), now, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = m.CreateProductDiscount(ctx, d1, true)
	require.NoError(t, err)
	_, err = m.CreateProductDiscount(ctx, d2, true)
	require.NoError(t, err)

	_, active, err := m.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, d2.ID, active[0].ID)

	// Without deactivation both stay active.
	_, err = m.CreateProductDiscount(ctx, d3, false)
	require.NoError(t, err)
	_, active, err = m.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = m.CreateProductDiscount(ctx, models.Discount{ProductID: "nope"}, true)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMemoryCoupons(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateUser(ctx, "42", "alice"))
	now := time.Now()

	c, err := models.NewCoupon("42", "SPRING", decimal.NewFromInt(20), now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = m.CreateCoupon(ctx, c)
	require.NoError(t, err)

	dup, err := models.NewCoupon("42", "SPRING", decimal.NewFromInt(10), now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = m.CreateCoupon(ctx, dup)
	assert.True(t, errors.Is(err, apperr.ErrDuplicated))

	orphan, err := models.NewCoupon("7", "OTHER", decimal.NewFromInt(10), now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = m.CreateCoupon(ctx, orphan)
	assert.Error(t, err)

	coupons, err := m.GetCoupons(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, coupons, 1)

	ok, err := m.UserExists(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)
}
