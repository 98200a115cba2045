package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/db/pagination"
)

type statusChangeRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) ListTransactions(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	var query struct {
		pagination.Pagination
		PayformID string `form:"payform_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.transactions.List(c.Request.Context(), txdomain.ListRequest{
		TenantID:  tenant.ID,
		PayformID: strings.TrimSpace(query.PayformID),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTransaction(c *gin.Context) {
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

	ctx := c.Request.Context()
	record, err := s.transactions.Get(ctx, tenant.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.transactions.History(ctx, tenant.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var status txdomain.Status
	if len(history) > 0 {
		status = history[len(history)-1].Status
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"transaction": record,
		"status":      status,
		"history":     history,
	}})
}

func (s *Server) ManualStatusChange(c *gin.Context) {
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

	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	status, err := txdomain.ParseStatus(req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, entry, err := s.transactions.ManualStatusChange(c.Request.Context(), tenant, id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"transaction": record,
		"status":      entry,
	}})
}

// SyncPayableStatus lets a payable owner push its own status change.
func (s *Server) SyncPayableStatus(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	ref := payabledomain.Ref{
		Type: strings.ToLower(strings.TrimSpace(c.Param("type"))),
		ID:   strings.TrimSpace(c.Param("id")),
	}
	if err := ref.Validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	entry, err := s.transactions.SyncFromPayableStatus(c.Request.Context(), tenant, ref, strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"changed": entry != nil,
		"status":  entry,
	}})
}
