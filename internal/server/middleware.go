package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/payforms/internal/observability/context"
	"github.com/smallbiznis/payforms/internal/observability/logger"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	HeaderTenant     = "X-Tenant-ID"
	queryTenant      = "tenant"
	contextTenantKey = "tenant"
)

// TenantContext resolves the tenant from the X-Tenant-ID header, falling back
// to the tenant query parameter gateways receive in their callback URL.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			raw = strings.TrimSpace(c.Query(queryTenant))
		}
		if raw == "" {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		tenant, err := s.tenantSvc.Resolve(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenant.ID)
		ctx = obscontext.WithTenantID(ctx, tenant.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextTenantKey, tenant)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) (tenantctx.Tenant, bool) {
	value, ok := c.Get(contextTenantKey)
	if !ok {
		return tenantctx.Tenant{}, false
	}
	tenant, ok := value.(tenantctx.Tenant)
	return tenant, ok && tenant.ID != 0
}

// RequireFeature rejects tenants that were not granted code.
func (s *Server) RequireFeature(code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantFromContext(c)
		if !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		if !tenant.HasFeature(code) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// CommitRateLimit throttles gateway callbacks per tenant and payform.
func (s *Server) CommitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.commitLimiter == nil || !s.commitLimiter.Enabled() {
			c.Next()
			return
		}
		tenant, ok := tenantFromContext(c)
		if !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		ctx := c.Request.Context()
		payformID := strings.TrimSpace(c.Param("id"))
		allowed, retryAfter, err := s.commitLimiter.Allow(ctx, tenant.ID.String(), payformID)
		if err != nil {
			// Redis trouble must not drop gateway confirmations.
			logger.FromContext(ctx).Warn("commit rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			logger.FromContext(ctx).Warn("commit rate limit exceeded",
				zap.String("payform_id", payformID),
				zap.Duration("retry_after", retryAfter),
			)
			s.obsMetrics.RecordWebhookRejected(ctx, payformID, "rate_limited")
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
