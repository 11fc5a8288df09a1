package routes

import (
	"log"

	"github.com/gin-gonic/gin"

	"querypilot/internal/di"
)

func SetupChatRoutes(router *gin.Engine) {
	chatHandler, err := di.GetChatHandler()
	if err != nil {
		log.Fatalf("Failed to get chat handler: %v", err)
	}

	chats := router.Group("/api/chats")
	{
		chats.GET("/:chatToken/messages", chatHandler.History)
		chats.POST("/:chatToken/messages", chatHandler.AppendMessage)
		chats.DELETE("/:chatToken/messages", chatHandler.ClearHistory)
		chats.POST("/:chatToken/reset", chatHandler.Reset)
	}
}
