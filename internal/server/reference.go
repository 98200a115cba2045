package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListCurrencies(c *gin.Context) {
	currencies, err := s.catalog.ListCurrencies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": currencies})
}
