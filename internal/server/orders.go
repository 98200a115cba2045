package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payforms/internal/observability/logger"
	orderdomain "github.com/smallbiznis/payforms/internal/order/domain"
	"go.uber.org/zap"
)

// CreateOrder stores the order and, when a payform is named, opens its payment.
// A failed payment still returns the stored order so the client can retry.
func (s *Server) CreateOrder(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	result, err := s.orderSvc.Create(ctx, tenant, req)
	if err != nil {
		if result == nil || result.Order == nil {
			AbortWithError(c, err)
			return
		}
		logger.FromContext(ctx).Warn("order payment not started",
			zap.String("order_id", result.Order.ID.String()),
			zap.String("payform_id", req.PayformID),
			zap.Error(err),
		)
		_, payload := mapError(err)
		c.JSON(http.StatusCreated, gin.H{"data": result, "payment_error": payload})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetOrder(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
