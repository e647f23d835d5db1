package reconcile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	httperr "github.com/makola-lab/project-makola/internal/core/errors"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

// RegisterRoutes registers the reconciliation route.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/sellers/:seller_id/reconcile", s.ReconcileHandler)
}

// ReconcileHandler triggers a product-count reconciliation.
//
// With an X-Session-ID header this is the dashboard-load path, guarded to run
// at most once per session. Without the header it is an explicit operator
// request and always runs.
func (s *Service) ReconcileHandler(c *gin.Context) {
	sellerID := c.Param("seller_id")
	sessionID := c.GetHeader("X-Session-ID")

	var (
		result *Result
		err    error
	)
	if sessionID != "" {
		result, err = s.ReconcileOnSession(c.Request.Context(), sessionID, sellerID)
	} else {
		result, err = s.ReconcileProductCount(c.Request.Context(), sellerID)
	}

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Seller not found",
			})
			return
		}
		slog.Error("Reconciliation failed", "seller_id", sellerID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Reconciliation failed",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
