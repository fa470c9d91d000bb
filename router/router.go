package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hhdaadws/atxp2api/controller"
	"github.com/hhdaadws/atxp2api/middleware"
	"github.com/hhdaadws/atxp2api/relay"
	"github.com/hhdaadws/atxp2api/service"
)

// SetRouter wires the HTTP surface. The surface is deliberately thin: all
// request logic lives in relay.
func SetRouter(engine *gin.Engine, pool *service.AccountPool, r *relay.Relay, apiKey string) {
	engine.Use(middleware.RequestId())
	engine.Use(cors.Default())
	engine.Use(middleware.Auth(apiKey))

	v1 := engine.Group("/v1")
	{
		v1.POST("/chat/completions", controller.ChatCompletions(r))
		v1.GET("/models", controller.Models(r))
	}
	engine.GET("/status", controller.Status(pool))
}
