package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/logger"
)

// RequestId tags every request with an id carried in the response header and
// the request context, so upstream call logs line up with client requests.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIdKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(common.RequestIdKey, id)
		c.Request = c.Request.WithContext(logger.WithRequestId(c.Request.Context(), id))
		c.Next()
	}
}
