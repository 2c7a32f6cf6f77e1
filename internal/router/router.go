// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/gateway"
	"github.com/Rryannta/marketplace-digital/internal/handlers"
	"github.com/Rryannta/marketplace-digital/internal/middleware"
	"github.com/Rryannta/marketplace-digital/internal/services"
)

// Initialize wires services, handlers and routes and returns the engine
// plus the order service for the background reconciler.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.OrderService) {
	// Services
	storageService, _ := services.NewStorageService(cfg)
	paymentGateway := gateway.NewMidtransGateway(cfg)

	authService := services.NewAuthService(db, cfg)
	userService := services.NewUserService(db, storageService, cfg)
	productService := services.NewProductService(db, storageService, cfg)
	orderService := services.NewOrderService(db, paymentGateway, storageService, cfg)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService, orderService)
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService, cfg)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
		}

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/profile", middleware.AuthRequired(), userHandler.GetProfile)
			users.PUT("/profile", middleware.AuthRequired(), userHandler.UpdateProfile)
			users.POST("/avatar", middleware.AuthRequired(), middleware.UploadRateLimit(), userHandler.UploadAvatar)
			users.GET("/stats", middleware.AuthRequired(), userHandler.GetSellerStats)
			users.GET("/:username", userHandler.GetPublicProfile)
		}

		// Product catalog
		products := v1.Group("/products")
		{
			products.GET("", middleware.OptionalAuth(), productHandler.Search)
			products.GET("/mine", middleware.AuthRequired(), productHandler.ListMine)
			products.GET("/:id", productHandler.Get)
			products.POST("", middleware.AuthRequired(), productHandler.Create)
			products.PUT("/:id", middleware.AuthRequired(), productHandler.Update)
			products.DELETE("/:id", middleware.AuthRequired(), productHandler.Remove)
			products.POST("/:id/file", middleware.AuthRequired(), middleware.UploadRateLimit(), productHandler.UploadFile)
			products.POST("/:id/cover", middleware.AuthRequired(), middleware.UploadRateLimit(), productHandler.UploadCover)
			products.GET("/:id/download", middleware.AuthRequired(), middleware.DownloadRateLimit(), orderHandler.Download)
		}

		// Orders and payments
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:id/verify", orderHandler.Verify)
		}

		// Gateway webhook, authenticated by signature instead of JWT
		v1.POST("/payments/notifications", orderHandler.Webhook)

		// Buyer library and search history
		v1.GET("/library", middleware.AuthRequired(), orderHandler.Library)
		search := v1.Group("/search")
		search.Use(middleware.AuthRequired())
		{
			search.GET("/history", productHandler.ListSearchHistory)
			search.DELETE("/history", productHandler.ClearSearchHistory)
		}
	}

	return r, orderService
}
