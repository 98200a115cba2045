package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	payformdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	payformservice "github.com/smallbiznis/payforms/internal/payform/service"
)

const maxCommitBody = 1 << 20

type createPayformTransactionRequest struct {
	Amount        int64              `json:"amount" binding:"gte=0"`
	Currency      string             `json:"currency" binding:"omitempty,len=3"`
	Metadata      map[string]any     `json:"metadata"`
	Payable       *payabledomain.Ref `json:"payable"`
	ReturnBaseURL string             `json:"return_base_url" binding:"omitempty,url"`
}

func (s *Server) ListActivePayforms(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	items, err := s.payformSvc.ListActive(c.Request.Context(), tenant, strings.TrimSpace(c.Query("currency")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListPayforms(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	items, err := s.payformSvc.ListDefinitions(c.Request.Context(), tenant)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetPayform(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	item, err := s.payformSvc.GetDefinition(c.Request.Context(), tenant, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdatePayform(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	var req payformservice.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	item, err := s.payformSvc.UpdateDefinition(c.Request.Context(), tenant, strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// CommitPayform receives gateway callbacks; the raw body is kept for signature checks.
func (s *Server) CommitPayform(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommitBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.payformSvc.Commit(c.Request.Context(), tenant, strings.TrimSpace(c.Param("id")), payformdomain.CommitRequest{
		Body:   body,
		Header: c.Request.Header.Clone(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"status": "ok"}
	if entry != nil {
		resp["transaction_status"] = entry.Status
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePayformTransaction(c *gin.Context) {
	tenant, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}

	var req createPayformTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.payformSvc.CreatePayment(c.Request.Context(), tenant, strings.TrimSpace(c.Param("id")), payformservice.CreatePaymentRequest{
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
		Metadata:      req.Metadata,
		Payable:       req.Payable,
		ReturnBaseURL: strings.TrimSpace(req.ReturnBaseURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
