package notify

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	httperr "github.com/makola-lab/project-makola/internal/core/errors"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/quota"
)

// RegisterRoutes registers the notification routes.
func (e *Engine) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/sellers/:seller_id/notifications", e.SendHandler)
	r.GET("/v1/sellers/:seller_id/notifications", e.HistoryHandler)
}

type sendRequest struct {
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Audience string `json:"audience"`
}

// SendHandler broadcasts one notification, metered by the quota enforcer.
func (e *Engine) SendHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid notification body",
			Details:   err.Error(),
		})
		return
	}
	if req.Audience == "" {
		req.Audience = AudienceAll
	}
	if !ValidAudience(req.Audience) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "audience must be all, verified, recent_viewers, or interested",
		})
		return
	}

	result, err := e.Send(c.Request.Context(), sellerID, req.Title, req.Message, req.Audience)
	if err != nil {
		writeSendError(c, sellerID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HistoryHandler returns the seller's notification ledger, newest first.
func (e *Engine) HistoryHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")

	records, err := e.History(c.Request.Context(), sellerID)
	if err != nil {
		slog.Error("Failed to list notification history", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to list notification history",
		})
		return
	}

	if records == nil {
		records = []model.NotificationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"seller_id": sellerID, "notifications": records})
}

func writeSendError(c *gin.Context, sellerID string, err error) {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpQuotaExceededError,
			Message:   "Weekly notification limit reached for current tier",
		})
	case errors.Is(err, ErrEmptyAudience):
		c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
			ErrorType: httperr.HttpEmptyAudienceError,
			Message:   "Audience resolved to no recipients",
		})
	case errors.Is(err, ErrDeliveryUnavailable):
		c.JSON(http.StatusBadGateway, httperr.ErrorResponse{
			ErrorType: httperr.HttpDeliveryFailedError,
			Message:   "Delivery service unavailable",
		})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "Seller not found",
		})
	default:
		slog.Error("Notification send failed", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Notification send failed",
		})
	}
}
