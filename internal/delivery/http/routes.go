package http

import (
	"github.com/gin-gonic/gin"

	"github.com/billbuddy/backend/config"
	"github.com/billbuddy/backend/internal/domain"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, verifier domain.TokenVerifier) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes, all behind auth
	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(verifier))
	{
		bills := v1.Group("/bills")
		{
			bills.POST("/process", handler.ProcessBill)
			bills.GET("/:billId/comparison", handler.GetBillComparison)
		}

		items := v1.Group("/items")
		{
			items.GET("/similar", handler.GetSimilarProducts)
			items.GET("/cheapest", handler.GetCheapestShops)
		}
	}

	return router
}
