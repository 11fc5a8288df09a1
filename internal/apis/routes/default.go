package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"querypilot/internal/apis/dtos"
	"querypilot/internal/di"
)

func SetupDefaultRoutes(router *gin.Engine) {
	manager, err := di.GetManager()
	if err != nil {
		log.Fatalf("Failed to get manager: %v", err)
	}

	// Health check route with gateway counters
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dtos.Response{
			Success: true,
			Data:    manager.Stats(),
		})
	})

	// Setup all route groups
	SetupSessionRoutes(router)
	SetupChatRoutes(router)
}
