package service

import (
	"context"
	"sort"
	"sync"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
)

// fakeStore is a minimal ProductStore with hooks for injecting stale reads
// and failures.
type fakeStore struct {
	mu        sync.Mutex
	products  map[string]models.Product
	events    map[string][]models.StockEvent
	discounts []models.Discount
	coupons   []models.Coupon
	users     map[string]bool

	lastStockEventFn func(productID string) (*models.StockEvent, error)
	createStockErr   error
	rows             []models.ProductStock
	getProductsCalls int

	stockWrites     []models.StockEvent
	deactivateFlags []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]models.Product{},
		events:   map[string][]models.StockEvent{},
		users:    map[string]bool{},
	}
}

func (f *fakeStore) CreateProduct(_ context.Context, p models.Product, e models.StockEvent) (models.Product, models.StockEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
	f.events[p.ID] = append(f.events[p.ID], e)
	return p, e, nil
}

func (f *fakeStore) CreateProductStockEvent(_ context.Context, e models.StockEvent) (models.StockEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockWrites = append(f.stockWrites, e)
	if f.createStockErr != nil {
		return models.StockEvent{}, f.createStockErr
	}
	for _, existing := range f.events[e.ProductID] {
		if existing.Version == e.Version {
			return models.StockEvent{}, apperr.OptimisticLock(nil)
		}
	}
	f.events[e.ProductID] = append(f.events[e.ProductID], e)
	return e, nil
}

func (f *fakeStore) GetLastStockEvent(_ context.Context, productID string) (*models.StockEvent, error) {
	if f.lastStockEventFn != nil {
		return f.lastStockEventFn(productID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest(productID), nil
}

func (f *fakeStore) latest(productID string) *models.StockEvent {
	var last *models.StockEvent
	for i, e := range f.events[productID] {
		if last == nil || e.Version > last.Version {
			last = &f.events[productID][i]
		}
	}
	if last == nil {
		return nil
	}
	cp := *last
	return &cp
}

func (f *fakeStore) CreateProductDiscount(_ context.Context, d models.Discount, deactivateOthers bool) (models.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivateFlags = append(f.deactivateFlags, deactivateOthers)
	if deactivateOthers {
		for i := range f.discounts {
			if f.discounts[i].ProductID == d.ProductID {
				f.discounts[i].Active = false
			}
		}
	}
	f.discounts = append(f.discounts, d)
	return d, nil
}

func (f *fakeStore) CreateCoupon(_ context.Context, c models.Coupon) (models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons = append(f.coupons, c)
	return c, nil
}

func (f *fakeStore) GetProducts(_ context.Context, _ string, _, _ int) ([]models.ProductStock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getProductsCalls++
	return f.rows, nil
}

func (f *fakeStore) GetProduct(_ context.Context, productID string) (models.Product, []models.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return models.Product{}, nil, apperr.NotFound("product " + productID)
	}
	var active []models.Discount
	for _, d := range f.discounts {
		if d.ProductID == productID && d.Active {
			active = append(active, d)
		}
	}
	return p, active, nil
}

func (f *fakeStore) GetCoupons(_ context.Context, userID string) ([]models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Coupon
	for _, c := range f.coupons {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UserExists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

func (f *fakeStore) versions(productID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, e := range f.events[productID] {
		out = append(out, e.Version)
	}
	sort.Ints(out)
	return out
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu       sync.Mutex
	created  []*models.ProductCreatedEvent
	stock    []*models.StockChangedEvent
	discount []*models.DiscountUpsertedEvent
	coupons  []*models.CouponIssuedEvent
	err      error
}

func (p *recordingPublisher) PublishProductCreated(_ context.Context, e *models.ProductCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *recordingPublisher) PublishStockChanged(_ context.Context, e *models.StockChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stock = append(p.stock, e)
	return p.err
}

func (p *recordingPublisher) PublishDiscountUpserted(_ context.Context, e *models.DiscountUpsertedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discount = append(p.discount, e)
	return p.err
}

func (p *recordingPublisher) PublishCouponIssued(_ context.Context, e *models.CouponIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coupons = append(p.coupons, e)
	return p.err
}

// fakeCache is an in-process StockCache.
type fakeCache struct {
	mu        sync.Mutex
	snapshots map[string][2]int
	err       error
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: map[string][2]int{}}
}

func (c *fakeCache) GetStockSnapshot(_ context.Context, productID string) (int, int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, 0, false, c.err
	}
	s, ok := c.snapshots[productID]
	return s[1], s[0], ok, nil
}

func (c *fakeCache) SetStockSnapshot(_ context.Context, productID string, version, total int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if s, ok := c.snapshots[productID]; ok && s[0] >= version {
		return false, nil
	}
	c.snapshots[productID] = [2]int{version, total}
	return true, nil
}

func zeroBackoff() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}
