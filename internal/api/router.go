package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/prodimport/internal/api/handler"
	"github.com/timmy/prodimport/internal/api/middleware"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/service"
	"gorm.io/gorm"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Uploads  *service.UploadService
	Products *service.ProductService
	Webhooks *service.WebhookService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	svc Services,
	db *gorm.DB,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Multipart bodies above this spill to temp files
	r.MaxMultipartMemory = 32 << 20

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(db)
	uploadHandler := handler.NewUploadHandler(svc.Uploads, cfg.MaxUploadMB<<20)
	productHandler := handler.NewProductHandler(svc.Products)
	webhookHandler := handler.NewWebhookHandler(svc.Webhooks)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Uploads and job progress
		uploads := v1.Group("/uploads")
		uploads.POST("", uploadHandler.Create)
		uploads.GET("", uploadHandler.List)
		uploads.GET("/:id", uploadHandler.Get)
		uploads.POST("/:id/process", uploadHandler.Process)

		// Products
		products := v1.Group("/products")
		products.GET("", productHandler.List)
		products.POST("", productHandler.Create)
		products.GET("/import/template", productHandler.Template)
		products.DELETE("/bulk-delete", productHandler.DeleteAll)
		products.GET("/:id", productHandler.Get)
		products.PUT("/:id", productHandler.Update)
		products.DELETE("/:id", productHandler.Delete)

		// Webhooks
		webhooks := v1.Group("/webhooks")
		webhooks.GET("", webhookHandler.List)
		webhooks.POST("", webhookHandler.Create)
		webhooks.GET("/:id", webhookHandler.Get)
		webhooks.PUT("/:id", webhookHandler.Update)
		webhooks.DELETE("/:id", webhookHandler.Delete)
		webhooks.POST("/:id/test", webhookHandler.Test)
	}

	return r
}
