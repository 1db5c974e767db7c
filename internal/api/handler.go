package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"commerce-service/internal/apperr"
	"commerce-service/internal/service"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func init() {
	// Report JSON field names in validation errors.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds request defaults.
type Options struct {
	DefaultPageSize  int
	MaxPageSize      int
	DefaultPageIndex int
	DiscountWindow   time.Duration
	IdempotencyTTL   time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	products    *service.ProductService
	promotions  *service.PromotionService
	inventory   *service.InventoryClient
	verifier    *TokenVerifier
	idempotency IdempotencyStore
	readiness   map[string]Pinger
	opts        Options
	now         func() time.Time
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	products *service.ProductService,
	promotions *service.PromotionService,
	inventory *service.InventoryClient,
	verifier *TokenVerifier,
	opts Options,
) *Handler {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 30
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	if opts.DefaultPageIndex <= 0 {
		opts.DefaultPageIndex = 1
	}
	if opts.DiscountWindow <= 0 {
		opts.DiscountWindow = 30 * 24 * time.Hour
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handler{
		products:   products,
		promotions: promotions,
		inventory:  inventory,
		verifier:   verifier,
		readiness:  make(map[string]Pinger),
		opts:       opts,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// WithIdempotency enables Idempotency-Key handling on stock updates.
func (h *Handler) WithIdempotency(store IdempotencyStore) *Handler {
	h.idempotency = store
	return h
}

// WithReadinessCheck adds a dependency to /ready.
func (h *Handler) WithReadinessCheck(name string, p Pinger) *Handler {
	h.readiness[name] = p
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", h.authenticate())
	{
		api.POST("/coupons/", h.requireUser(), h.createCoupon)

		api.GET("/products/", h.listProducts)
		api.POST("/products/", h.createProduct)
		api.GET("/products/:id/", h.getProduct)
		api.GET("/products/:id/stock/", h.getStock)
		api.POST("/products/:id/stock/", h.updateStock)
		api.POST("/products/:id/discounts/", h.upsertDiscount)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.readiness))
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not ready"
	}
	c.JSON(status, gin.H{
		"status": label,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// respondError writes err as {"error", "details"}. Errors without a kind
// become a generic 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.JSON(status, body)
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) errorBody(c *gin.Context, err error) (int, gin.H) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "Internal server error"}
	}

	status := apperr.HTTPStatus(appErr)
	if !apperr.IsClient(appErr) {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(appErr.Kind)),
			zap.Error(err))
	}
	return status, gin.H{
		"error":   appErr.Message(),
		"details": appErr.Detail,
	}
}

// bindJSON decodes the body. A missing required field is reported as
// parameter_required naming the field, anything else as invalid_parameter.
func bindJSON(c *gin.Context, req interface{}) error {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return apperr.ParameterRequired(fe.Field())
		}
		return apperr.InvalidParameter(fe.Field() + " is invalid.")
	}
	return apperr.Wrap(apperr.KindInvalidParameter, "Invalid request body", err)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
