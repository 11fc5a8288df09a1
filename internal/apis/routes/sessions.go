package routes

import (
	"log"

	"github.com/gin-gonic/gin"

	"querypilot/internal/di"
)

func SetupSessionRoutes(router *gin.Engine) {
	sessionHandler, err := di.GetSessionHandler()
	if err != nil {
		log.Fatalf("Failed to get session handler: %v", err)
	}
	queryHandler, err := di.GetQueryHandler()
	if err != nil {
		log.Fatalf("Failed to get query handler: %v", err)
	}
	chatHandler, err := di.GetChatHandler()
	if err != nil {
		log.Fatalf("Failed to get chat handler: %v", err)
	}

	sessions := router.Group("/api/sessions")
	{
		sessions.POST("", sessionHandler.Create)
		sessions.POST("/test", sessionHandler.Test)
		sessions.GET("/:token", sessionHandler.Status)
		sessions.DELETE("/:token", sessionHandler.Delete)
		sessions.GET("/:token/schema", sessionHandler.Schema)

		sessions.POST("/:token/query", queryHandler.Execute)
		sessions.POST("/:token/chats", chatHandler.Create)
	}
}
