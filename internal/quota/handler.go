package quota

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	httperr "github.com/makola-lab/project-makola/internal/core/errors"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/shopspring/decimal"
)

// Service exposes the quota-gated seller actions over HTTP.
type Service struct {
	enforcer *Enforcer
	entities storage.EntityStore
}

// NewService creates the quota HTTP service.
func NewService(enforcer *Enforcer, entities storage.EntityStore) *Service {
	if enforcer == nil {
		panic("quota: enforcer must not be nil")
	}
	if entities == nil {
		panic("quota: entities must not be nil")
	}
	return &Service{enforcer: enforcer, entities: entities}
}

// RegisterRoutes registers the quota-gated routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/sellers/:seller_id/products", s.CreateProductHandler)
	r.DELETE("/v1/sellers/:seller_id/products/:product_id", s.DeleteProductHandler)
	r.GET("/v1/sellers/:seller_id/quota", s.QuotaStatusHandler)
	r.POST("/v1/sellers/:seller_id/subscription", s.ActivateSubscriptionHandler)
}

type createProductRequest struct {
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price"`
}

// CreateProductHandler gates product creation on the seller's product quota.
// Discipline is check, act, increment: the cached count moves only after the
// create succeeded.
func (s *Service) CreateProductHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid product body",
			Details:   err.Error(),
		})
		return
	}

	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "price must not be negative",
		})
		return
	}

	decision, err := s.enforcer.CanAddProduct(c.Request.Context(), sellerID)
	if err != nil {
		writeQuotaCheckError(c, sellerID, err)
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpQuotaExceededError,
			Message:   "Product limit reached for current tier",
			Details:   decision,
		})
		return
	}

	product := &model.Product{
		ID:       uuid.NewString(),
		SellerID: sellerID,
		Name:     req.Name,
		Price:    req.Price,
		Status:   model.ProductActive,
	}

	if err := s.entities.CreateProduct(c.Request.Context(), product); err != nil {
		slog.Error("Failed to create product", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to create product",
		})
		return
	}

	if err := s.enforcer.OnProductCreated(c.Request.Context(), sellerID); err != nil {
		// The create already landed; the cached count is now stale and
		// reconciliation will correct it. Don't fail the completed action.
		slog.Error("Failed to increment product count after create",
			"seller_id", sellerID, "product_id", product.ID, "error", err)
	}

	c.JSON(http.StatusCreated, product)
}

// DeleteProductHandler removes a product and decrements the cached count,
// floored at zero.
func (s *Service) DeleteProductHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")
	productID := c.Param("product_id")

	if err := s.entities.DeleteProduct(c.Request.Context(), sellerID, productID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Product not found",
			})
			return
		}
		slog.Error("Failed to delete product",
			"seller_id", sellerID, "product_id", productID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to delete product",
		})
		return
	}

	if err := s.enforcer.OnProductDeleted(c.Request.Context(), sellerID); err != nil {
		slog.Error("Failed to decrement product count after delete",
			"seller_id", sellerID, "product_id", productID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// QuotaStatusHandler reports both quotas. The read triggers the lazy weekly
// rollover and the lazy premium expiry check.
func (s *Service) QuotaStatusHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	product, notification, err := s.enforcer.Status(c.Request.Context(), sellerID)
	if err != nil {
		writeQuotaCheckError(c, sellerID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"seller_id":    sellerID,
		"product":      product,
		"notification": notification,
	})
}

type activateSubscriptionRequest struct {
	Months int `json:"months" binding:"required"`
}

// ActivateSubscriptionHandler is the subscription-activation callback invoked
// after an external payment succeeds. Payment protocol details live upstream.
func (s *Service) ActivateSubscriptionHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	var req activateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Months <= 0 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "months must be a positive integer",
		})
		return
	}

	seller, err := s.enforcer.Upgrade(c.Request.Context(), sellerID, req.Months)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Seller not found",
			})
			return
		}
		slog.Error("Failed to activate subscription", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to activate subscription",
		})
		return
	}

	var expiresAt *time.Time
	if seller != nil {
		expiresAt = seller.SubscriptionExpiresAt
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":       model.TierPremium,
		"expires_at": expiresAt,
	})
}

// writeQuotaCheckError maps quota-path failures. Unknown sellers are 404;
// everything else fails closed as a denied check.
func writeQuotaCheckError(c *gin.Context, sellerID string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "Seller not found",
		})
		return
	}
	slog.Error("Quota check failed, denying action", "seller_id", sellerID, "error", err)
	c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
		ErrorType: httperr.HttpQuotaCheckFailed,
		Message:   "Quota check unavailable, action denied",
	})
}
