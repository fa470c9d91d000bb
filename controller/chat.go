package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/logger"
	"github.com/hhdaadws/atxp2api/relay"
)

const defaultModel = "anthropic/claude-opus-4-6"

// ChatCompletions handles POST /v1/chat/completions.
func ChatCompletions(r *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.ChatCompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid JSON body", "invalid_request_error")
			return
		}
		if req.Model == "" {
			req.Model = defaultModel
		}
		if strings.TrimSpace(relay.FlattenMessages(req.Messages)) == "" {
			abortWithError(c, http.StatusBadRequest, "No messages", "invalid_request_error")
			return
		}

		if apiErr := r.ChatCompletions(c, &req); apiErr != nil {
			logger.LogError(c.Request.Context(), "chat completion failed: %s", apiErr.Error())
			abortWithError(c, apiErr.StatusCode, apiErr.Message, apiErr.OpenAIErrorType())
		}
	}
}

// Models handles GET /v1/models.
func Models(r *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		models, apiErr := r.ListModels(c.Request.Context())
		if apiErr != nil {
			abortWithError(c, apiErr.StatusCode, apiErr.Message, apiErr.OpenAIErrorType())
			return
		}
		c.JSON(http.StatusOK, dto.ModelListResponse{Object: "list", Data: models})
	}
}

func abortWithError(c *gin.Context, statusCode int, message, errType string) {
	c.JSON(statusCode, dto.OpenAIErrorResponse{Error: dto.OpenAIError{
		Message: message,
		Type:    errType,
	}})
	c.Abort()
}
