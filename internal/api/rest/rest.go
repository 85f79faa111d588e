package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/lumenart/curator/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Artwork endpoints (public read access)
		v1.GET("/artworks", handler.ListArtworks)
		v1.GET("/artworks/:id", handler.GetArtwork)

		// Import batch per source (requires authentication when configured)
		v1.POST("/import/:source", middleware.Auth(authCfg), handler.ImportNFTs)
		v1.POST("/import/:source/wallet", middleware.Auth(authCfg), handler.ImportWallet)

		// Refetch with sparse merge (requires authentication when configured)
		v1.POST("/artworks/:id/refetch", middleware.Auth(authCfg), handler.RefetchArtwork)

		// Attempt-ledger endpoints
		v1.GET("/imports/retryable", handler.ListRetryableImports)
		v1.POST("/imports/:id/retry", middleware.Auth(authCfg), handler.RetryImport)
	}
}
