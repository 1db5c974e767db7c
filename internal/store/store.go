package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// PoolOptions tunes the database/sql connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the PostgreSQL implementation of the product store.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, pool PoolOptions) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateProduct inserts the product and its first ledger entry in one
// transaction.
func (s *Store) CreateProduct(ctx context.Context, product models.Product, stock models.StockEvent) (models.Product, models.StockEvent, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Product{}, models.StockEvent{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		product.ID, product.Name, product.Description, product.Price, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return models.Product{}, models.StockEvent{}, fmt.Errorf("failed to insert product: %w", err)
	}

	if err := insertStockEvent(ctx, tx, stock); err != nil {
		return models.Product{}, models.StockEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Product{}, models.StockEvent{}, fmt.Errorf("failed to commit product: %w", err)
	}
	return product, stock, nil
}

// CreateProductStockEvent appends to the ledger. A concurrent writer that got
// the same version first surfaces as apperr.ErrOptimisticLock.
func (s *Store) CreateProductStockEvent(ctx context.Context, event models.StockEvent) (models.StockEvent, error) {
	if err := insertStockEvent(ctx, s.db, event); err != nil {
		return models.StockEvent{}, err
	}
	return event, nil
}

func insertStockEvent(ctx context.Context, db sqlx.ExecerContext, event models.StockEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO product_stock_events (id, product_id, change, total_after_change, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ProductID, event.Change, event.TotalAfterChange, event.CreatedAt, event.Version)
	switch {
	case err == nil:
		return nil
	case isVersionConflict(err):
		return apperr.OptimisticLock(err)
	case isForeignKeyViolation(err):
		return apperr.NotFound("product not found.")
	default:
		return fmt.Errorf("failed to insert stock event: %w", err)
	}
}

// GetLastStockEvent returns the highest-version entry, or nil when the product
// has no ledger.
func (s *Store) GetLastStockEvent(ctx context.Context, productID string) (*models.StockEvent, error) {
	var event models.StockEvent
	err := s.db.GetContext(ctx, &event, `
		SELECT id, product_id, change, total_after_change, created_at, version
		FROM product_stock_events
		WHERE product_id = $1
		ORDER BY version DESC
		LIMIT 1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateProductDiscount inserts the discount. With deactivateOthers the
// product row is locked and previously active discounts are switched off in
// the same transaction, so at most one stays active.
func (s *Store) CreateProductDiscount(ctx context.Context, discount models.Discount, deactivateOthers bool) (models.Discount, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Discount{}, err
	}
	defer tx.Rollback()

	var id string
	err = tx.GetContext(ctx, &id, "SELECT id FROM products WHERE id = $1 FOR UPDATE", discount.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Discount{}, apperr.NotFound("product not found.")
	}
	if err != nil {
		return models.Discount{}, fmt.Errorf("failed to lock product: %w", err)
	}

	if deactivateOthers {
		_, err = tx.ExecContext(ctx,
			"UPDATE product_discounts SET active = FALSE WHERE product_id = $1 AND active",
			discount.ProductID)
		if err != nil {
			return models.Discount{}, fmt.Errorf("failed to deactivate discounts: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_discounts (id, product_id, percentage, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		discount.ID, discount.ProductID, discount.Percentage, discount.StartDate, discount.EndDate, discount.Active)
	if err != nil {
		return models.Discount{}, fmt.Errorf("failed to insert discount: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Discount{}, fmt.Errorf("failed to commit discount: %w", err)
	}
	return discount, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon models.Coupon) (models.Coupon, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, user_id, code, discount_percentage, valid_from, valid_to, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		coupon.ID, coupon.UserID, coupon.Code, coupon.DiscountPercentage, coupon.ValidFrom, coupon.ValidTo, coupon.Active)
	switch {
	case err == nil:
		return coupon, nil
	case isDuplicateCouponCode(err):
		return models.Coupon{}, apperr.Wrap(apperr.KindDuplicated, "cupon code already exists.", err)
	case isForeignKeyViolation(err):
		return models.Coupon{}, apperr.InvalidParameter("user not found.")
	default:
		return models.Coupon{}, fmt.Errorf("failed to insert coupon: %w", err)
	}
}

type productStockRow struct {
	models.Product
	StockCount int `db:"stock_count"`
}

// GetProducts returns one page ordered by id. The name filter is a
// case-insensitive substring match.
func (s *Store) GetProducts(ctx context.Context, nameFilter string, pageSize, pageIndex int) ([]models.ProductStock, error) {
	var rows []productStockRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id, p.name, p.description, p.price, p.created_at, p.updated_at,
		       COALESCE(s.total_after_change, 0) AS stock_count
		FROM products p
		LEFT JOIN LATERAL (
			SELECT e.total_after_change
			FROM product_stock_events e
			WHERE e.product_id = p.id
			ORDER BY e.version DESC
			LIMIT 1
		) s ON TRUE
		WHERE $1 = '' OR p.name ILIKE '%' || $1 || '%'
		ORDER BY p.id
		LIMIT $2 OFFSET $3`,
		escapeLike(nameFilter), pageSize, (pageIndex-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if len(rows) == 0 {
		return []models.ProductStock{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	discounts, err := s.activeDiscounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]models.ProductStock, len(rows))
	for i, row := range rows {
		result[i] = models.ProductStock{
			Product:    row.Product,
			Discounts:  discounts[row.ID],
			StockCount: row.StockCount,
		}
	}
	return result, nil
}

func (s *Store) activeDiscounts(ctx context.Context, productIDs []string) (map[string][]models.Discount, error) {
	query, args, err := sqlx.In(`
		SELECT id, product_id, percentage, start_date, end_date, active
		FROM product_discounts
		WHERE active AND product_id IN (?)`, productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var discounts []models.Discount
	if err := s.db.SelectContext(ctx, &discounts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load discounts: %w", err)
	}

	byProduct := make(map[string][]models.Discount, len(productIDs))
	for _, d := range discounts {
		byProduct[d.ProductID] = append(byProduct[d.ProductID], d)
	}
	return byProduct, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (models.Product, []models.Discount, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, `
		SELECT id, name, description, price, created_at, updated_at
		FROM products WHERE id = $1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, nil, apperr.NotFound("product not found.")
	}
	if err != nil {
		return models.Product{}, nil, err
	}

	discounts, err := s.activeDiscounts(ctx, []string{productID})
	if err != nil {
		return models.Product{}, nil, err
	}
	return product, discounts[productID], nil
}

func (s *Store) GetCoupons(ctx context.Context, userID string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := s.db.SelectContext(ctx, &coupons, `
		SELECT id, user_id, code, discount_percentage, valid_from, valid_to, active
		FROM coupons WHERE user_id = $1
		ORDER BY id`, userID)
	return coupons, err
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID)
	return exists, err
}

// CreateUser registers a user id. Existing ids are left untouched.
func (s *Store) CreateUser(ctx context.Context, userID, username string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		userID, username)
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
