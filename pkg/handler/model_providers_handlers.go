package handler

import (
	"net/http"

	"github.com/choraleia/coach/pkg/service"
	"github.com/gin-gonic/gin"
)

// GetProviders returns the model providers the server can build, with the
// configured one flagged.
func GetProviders(active string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": service.SupportedProviders(), "active": active})
	}
}
