package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/models"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// productBody is the JSON form of a product.
type productBody struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newProductBody(p models.Product) productBody {
	return productBody{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProductDTO is a product with its stock and, in listings, its price after
// the product discount.
type ProductDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	StockCount     int      `json:"stock_count"`
	DiscountAmount *float64 `json:"discount_amount"`
	FinalPrice     *float64 `json:"final_price"`
}

// ProductDetailDTO is a product priced for the caller.
type ProductDetailDTO struct {
	Product               productBody `json:"product"`
	ProductDiscountAmount float64     `json:"product_discount_amount"`
	CuponDiscountAmount   float64     `json:"cupon_discount_amount"`
	FinalPrice            float64     `json:"final_price"`
}

type createProductRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description" binding:"required"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Stock       *int             `json:"stock" binding:"required"`
}

type updateStockRequest struct {
	Change *int `json:"change" binding:"required"`
}

type updateStockResponse struct {
	NewStockCount int `json:"new_stock_count"`
}

func floatPtr(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}

func (h *Handler) listProducts(c *gin.Context) {
	pageSize, err := intQuery(c, "page_size", h.opts.DefaultPageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if pageSize > h.opts.MaxPageSize {
		h.respondError(c, apperr.InvalidParameter(fmt.Sprintf("page_size must not exceed %d.", h.opts.MaxPageSize)))
		return
	}
	pageIndex, err := intQuery(c, "page_index", h.opts.DefaultPageIndex)
	if err != nil {
		h.respondError(c, err)
		return
	}

	listings, err := h.products.ListProducts(c.Request.Context(), service.ProductQuery{
		Name:      c.Query("product_name"),
		PageSize:  pageSize,
		PageIndex: pageIndex,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	dtos := []ProductDTO{}
	for listing, err := range listings {
		if err != nil {
			h.respondError(c, err)
			return
		}
		dtos = append(dtos, ProductDTO{
			ID:             listing.Product.ID,
			Name:           listing.Product.Name,
			Description:    listing.Product.Description,
			Price:          listing.Product.Price.InexactFloat64(),
			StockCount:     listing.StockCount,
			DiscountAmount: floatPtr(listing.ProductDiscountAmount),
			FinalPrice:     floatPtr(listing.TotalAmount),
		})
	}

	c.JSON(http.StatusOK, gin.H{"products": dtos})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	product, stock, err := h.products.CreateProduct(c.Request.Context(), service.CreateProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Stock:       *req.Stock,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price.InexactFloat64(),
		StockCount:  stock.TotalAfterChange,
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	info, err := h.products.GetProductWithCouponDiscount(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProductDetailDTO{
		Product:               newProductBody(info.Product),
		ProductDiscountAmount: info.ProductDiscountAmount.InexactFloat64(),
		CuponDiscountAmount:   info.CuponDiscountAmount.InexactFloat64(),
		FinalPrice:            info.FinalPrice.InexactFloat64(),
	})
}

func (h *Handler) getStock(c *gin.Context) {
	level, err := h.inventory.CurrentStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":  level.ProductID,
		"stock_count": level.Total,
		"version":     level.Version,
	})
}

func (h *Handler) updateStock(c *gin.Context) {
	productID := c.Param("id")

	var req updateStockRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	key := c.GetHeader(idempotencyHeader)
	if key == "" || h.idempotency == nil {
		event, err := h.products.UpdateStock(c.Request.Context(), productID, *req.Change)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, updateStockResponse{NewStockCount: event.TotalAfterChange})
		return
	}

	h.idempotent(c, "stock:"+productID+":"+key, func() (interface{}, error) {
		event, err := h.products.UpdateStock(c.Request.Context(), productID, *req.Change)
		if err != nil {
			return nil, err
		}
		return updateStockResponse{NewStockCount: event.TotalAfterChange}, nil
	})
}

// intQuery reads a positive integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.InvalidParameter(name + " must be a positive integer.")
	}
	return n, nil
}
