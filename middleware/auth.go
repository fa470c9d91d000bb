package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hhdaadws/atxp2api/dto"
)

// Auth gates every route behind a static bearer key when one is configured.
// /status stays open. An empty key disables the gate entirely.
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || c.Request.URL.Path == "/status" {
			c.Next()
			return
		}

		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if token != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.OpenAIErrorResponse{
				Error: dto.OpenAIError{Message: "Invalid API key", Type: "invalid_request_error"},
			})
			return
		}
		c.Next()
	}
}
