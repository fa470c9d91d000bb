package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hhdaadws/atxp2api/service"
)

// Status handles GET /status. Never gated: operators probe it before keys
// are configured.
func Status(pool *service.AccountPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, pool.Status())
	}
}
