package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
)

// MemoryStore keeps everything in process. It enforces the same constraints
// as the PostgreSQL schema and is used for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]models.Product
	ledger    map[string][]models.StockEvent
	discounts map[string][]models.Discount
	coupons   []models.Coupon
	users     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]models.Product),
		ledger:    make(map[string][]models.StockEvent),
		discounts: make(map[string][]models.Discount),
		users:     make(map[string]string),
	}
}

// CreateUser registers a user id. Existing ids are left untouched.
func (m *MemoryStore) CreateUser(_ context.Context, userID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = username
	}
	return nil
}

func (m *MemoryStore) CreateProduct(_ context.Context, product models.Product, stock models.StockEvent) (models.Product, models.StockEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; ok {
		return models.Product{}, models.StockEvent{}, apperr.New(apperr.KindDuplicated, "product already exists.")
	}
	if stock.ProductID != product.ID {
		return models.Product{}, models.StockEvent{}, apperr.Service("stock event does not belong to product.")
	}
	m.products[product.ID] = product
	m.ledger[product.ID] = []models.StockEvent{stock}
	return product, stock, nil
}

func (m *MemoryStore) CreateProductStockEvent(_ context.Context, event models.StockEvent) (models.StockEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[event.ProductID]; !ok {
		return models.StockEvent{}, apperr.NotFound("product not found.")
	}
	for _, e := range m.ledger[event.ProductID] {
		if e.Version == event.Version {
			return models.StockEvent{}, apperr.OptimisticLock(nil)
		}
	}
	if event.TotalAfterChange < 0 {
		return models.StockEvent{}, apperr.InvalidStockChange("total after change must not be negative.")
	}
	m.ledger[event.ProductID] = append(m.ledger[event.ProductID], event)
	return event, nil
}

func (m *MemoryStore) GetLastStockEvent(_ context.Context, productID string) (*models.StockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := m.lastEventLocked(productID)
	if last == nil {
		return nil, nil
	}
	event := *last
	return &event, nil
}

func (m *MemoryStore) lastEventLocked(productID string) *models.StockEvent {
	var last *models.StockEvent
	events := m.ledger[productID]
	for i := range events {
		if last == nil || events[i].Version > last.Version {
			last = &events[i]
		}
	}
	return last
}

func (m *MemoryStore) CreateProductDiscount(_ context.Context, discount models.Discount, deactivateOthers bool) (models.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[discount.ProductID]; !ok {
		return models.Discount{}, apperr.NotFound("product not found.")
	}
	if deactivateOthers {
		existing := m.discounts[discount.ProductID]
		for i := range existing {
			existing[i].Active = false
		}
	}
	m.discounts[discount.ProductID] = append(m.discounts[discount.ProductID], discount)
	return discount, nil
}

func (m *MemoryStore) CreateCoupon(_ context.Context, coupon models.Coupon) (models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[coupon.UserID]; !ok {
		return models.Coupon{}, apperr.InvalidParameter("user not found.")
	}
	for _, c := range m.coupons {
		if c.Code == coupon.Code {
			return models.Coupon{}, apperr.New(apperr.KindDuplicated, "cupon code already exists.")
		}
	}
	m.coupons = append(m.coupons, coupon)
	return coupon, nil
}

func (m *MemoryStore) GetProducts(_ context.Context, nameFilter string, pageSize, pageIndex int) ([]models.ProductStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(nameFilter)
	ids := make([]string, 0, len(m.products))
	for id, p := range m.products {
		if needle == "" || strings.Contains(strings.ToLower(p.Name), needle) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	offset := (pageIndex - 1) * pageSize
	if offset < 0 || offset >= len(ids) {
		return []models.ProductStock{}, nil
	}
	end := min(offset+pageSize, len(ids))

	page := make([]models.ProductStock, 0, end-offset)
	for _, id := range ids[offset:end] {
		stock := 0
		if last := m.lastEventLocked(id); last != nil {
			stock = last.TotalAfterChange
		}
		page = append(page, models.ProductStock{
			Product:    m.products[id],
			Discounts:  m.activeDiscountsLocked(id),
			StockCount: stock,
		})
	}
	return page, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, productID string) (models.Product, []models.Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[productID]
	if !ok {
		return models.Product{}, nil, apperr.NotFound("product not found.")
	}
	return product, m.activeDiscountsLocked(productID), nil
}

func (m *MemoryStore) activeDiscountsLocked(productID string) []models.Discount {
	var active []models.Discount
	for _, d := range m.discounts[productID] {
		if d.Active {
			active = append(active, d)
		}
	}
	return active
}

func (m *MemoryStore) GetCoupons(_ context.Context, userID string) ([]models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var coupons []models.Coupon
	for _, c := range m.coupons {
		if c.UserID == userID {
			coupons = append(coupons, c)
		}
	}
	return coupons, nil
}

func (m *MemoryStore) UserExists(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
