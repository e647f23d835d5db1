package metering

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	httperr "github.com/makola-lab/project-makola/internal/core/errors"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/core/timebucket"
	"github.com/shopspring/decimal"
)

// RegisterRoutes registers the metering routes: event intake and bucket reads.
func (r *Recorder) RegisterRoutes(router gin.IRouter) {
	router.POST("/v1/events", r.RecordEventHandler)
	router.GET("/v1/sellers/:seller_id/analytics", r.AnalyticsHandler)
	router.GET("/v1/sellers/:seller_id/analytics/top-products", r.TopProductsHandler)
}

// RecordEventHandler accepts one product event and enqueues it.
// Responds 202: the caller's business action is already done; metering is
// asynchronous and must never fail it.
func (r *Recorder) RecordEventHandler(c *gin.Context) {
	var event v1.ProductEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid event body",
			Details:   err.Error(),
		})
		return
	}

	event.RecordedAt = r.nowFn()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = event.RecordedAt
	}

	if err := event.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   err.Error(),
		})
		return
	}

	slog.Info("Received product event",
		"seller_id", event.SellerID,
		"product_id", event.ProductID,
		"event_type", event.Type)

	r.Enqueue(&event)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// AnalyticsHandler serves one bucket read.
// Query parameters: granularity (day|week|month|total, default total) and
// period (defaults to the current period of that granularity).
func (r *Recorder) AnalyticsHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	granularity := c.DefaultQuery("granularity", timebucket.GranularityTotal)
	if !timebucket.ValidGranularity(granularity) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "granularity must be day, week, month, or total",
		})
		return
	}

	period := c.Query("period")
	if period == "" {
		current, err := timebucket.Resolve(r.nowFn()).PeriodFor(granularity)
		if err != nil {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidJsonError,
				Message:   err.Error(),
			})
			return
		}
		period = current
	}

	key := storage.BucketKey{SellerID: sellerID, Granularity: granularity, PeriodID: period}
	bucket, err := r.buckets.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		// Buckets are created lazily on the first event of a period; a read
		// before that sees the zero-valued document, not an error.
		c.JSON(http.StatusOK, model.AnalyticsBucket{
			SellerID:    sellerID,
			Granularity: granularity,
			PeriodID:    period,
			Revenue:     decimal.Zero,
		})
		return
	}
	if err != nil {
		slog.Error("Failed to read analytics bucket",
			"seller_id", sellerID, "granularity", granularity, "period", period, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read analytics bucket",
		})
		return
	}

	c.JSON(http.StatusOK, bucket)
}

// TopProductsHandler serves the lifetime top-N ranking snapshot.
func (r *Recorder) TopProductsHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	key := storage.BucketKey{
		SellerID:    sellerID,
		Granularity: timebucket.GranularityTotal,
		PeriodID:    timebucket.PeriodTotal,
	}
	bucket, err := r.buckets.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"seller_id": sellerID, "top_products": []model.TopProduct{}})
		return
	}
	if err != nil {
		slog.Error("Failed to read top products", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read top products",
		})
		return
	}

	top := bucket.TopProducts
	if top == nil {
		top = []model.TopProduct{}
	}
	c.JSON(http.StatusOK, gin.H{"seller_id": sellerID, "top_products": top})
}
