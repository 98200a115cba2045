package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/payforms/internal/tenant/domain"
)

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

func (s *Server) GetTenant(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	tenant, err := s.tenantSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	features, err := s.featureSvc.List(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"tenant":   tenant,
		"features": features,
	}})
}

func (s *Server) GrantFeature(c *gin.Context) {
	s.setFeature(c, true)
}

func (s *Server) RevokeFeature(c *gin.Context) {
	s.setFeature(c, false)
}

func (s *Server) setFeature(c *gin.Context, enabled bool) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.tenantSvc.Get(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}

	code := strings.TrimSpace(c.Param("code"))
	if enabled {
		err = s.featureSvc.Grant(ctx, id, code)
	} else {
		err = s.featureSvc.Revoke(ctx, id, code)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
