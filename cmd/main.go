package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"store-migration-service/internal/checkout"
	"store-migration-service/internal/config"
	"store-migration-service/internal/database"
	"store-migration-service/internal/destination"
	"store-migration-service/internal/handlers"
	"store-migration-service/internal/logger"
	"store-migration-service/internal/middleware"
	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
	"store-migration-service/internal/repository"
	"store-migration-service/internal/secrets"
	"store-migration-service/internal/services"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.DestinationConnection{},
		&models.MigrationBatch{},
		&models.MigrationItem{},
		&models.MigrationLog{},
	); err != nil {
		zapLogger.Warn("Auto-migration failed", zap.Error(err))
	}
	zapLogger.Info("Database models migrated")

	// Initialize GCP Secret Manager
	var secretProvider secrets.Provider
	if cfg.GCPProjectID != "" {
		sm, err := secrets.NewGCPSecretManager(context.Background(), cfg.GCPProjectID)
		if err != nil {
			zapLogger.Warn("Failed to initialize GCP Secret Manager", zap.Error(err))
		} else {
			defer sm.Close()
			secretProvider = sm
			zapLogger.Info("GCP Secret Manager initialized")
		}
	}

	// Source strategies
	apiClient := platform.NewAPIClient(cfg.SourceRateLimit)
	scrapeClient := platform.NewScrapeClient(cfg.ScrapeRateLimit)
	resolver := platform.NewResolver(apiClient, scrapeClient)

	// Destination store and checkout clients
	shopifyClient := destination.NewShopifyClient(zapLogger)
	checkoutClient := checkout.NewClient(cfg.CheckoutBaseURL)

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(db)
	migrationRepo := repository.NewMigrationRepository(db)

	// Initialize services
	credentialService := services.NewCredentialService(connectionRepo, secretProvider, shopifyClient, zapLogger)
	discoveryService := services.NewDiscoveryService(resolver, zapLogger)
	cloneService := services.NewCloneService(shopifyClient, zapLogger)
	integrationService := services.NewIntegrationService(migrationRepo, checkoutClient, zapLogger)
	migrationService := services.NewMigrationService(
		migrationRepo,
		connectionRepo,
		credentialService,
		discoveryService,
		cloneService,
		integrationService,
		cfg,
		zapLogger,
	)
	limiter := services.NewTenantSemaphore(&services.TenantConcurrencyConfig{
		MaxConcurrentBatches: cfg.MaxActiveBatches,
		MaxConcurrentPerConn: 1,
		BatchTimeout:         cfg.MigrationTimeout,
		QueueTimeout:         cfg.MigrationTimeout,
	})
	migrationService.SetConcurrencyLimiter(limiter)

	// Periodically drop per-tenant semaphores left behind by finished batches
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
		}
	}()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	connectionHandler := handlers.NewConnectionHandler(credentialService)
	discoveryHandler := handlers.NewDiscoveryHandler(discoveryService)
	migrationHandler := handlers.NewMigrationHandler(migrationService)

	// Setup router
	router := setupRouter(cfg, healthHandler, connectionHandler, discoveryHandler, migrationHandler)

	// Start server
	zapLogger.Info("Store Migration Service starting",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment))
	if err := router.Run(":" + cfg.Port); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	connectionHandler *handlers.ConnectionHandler,
	discoveryHandler *handlers.DiscoveryHandler,
	migrationHandler *handlers.MigrationHandler,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.TenantMiddleware())

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API routes - require tenant ID
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireTenantID())
	{
		// Destination Connections
		connections := v1.Group("/connections")
		{
			connections.GET("", connectionHandler.List)
			connections.POST("", connectionHandler.Create)
			connections.GET("/:id", connectionHandler.Get)
			connections.PATCH("/:id", connectionHandler.Update)
			connections.DELETE("/:id", connectionHandler.Delete)
			connections.POST("/:id/validate", connectionHandler.Validate)
			connections.PUT("/:id/credentials", connectionHandler.UpdateCredentials)
		}

		// Source Discovery
		sources := v1.Group("/sources")
		{
			sources.POST("/classify", discoveryHandler.Classify)
			sources.POST("/products/fetch", discoveryHandler.FetchProduct)
			sources.POST("/scan", discoveryHandler.ScanStore)
		}

		// Migration Batches
		migrations := v1.Group("/migrations")
		{
			migrations.GET("", migrationHandler.ListBatches)
			migrations.POST("", migrationHandler.CreateBatch)
			migrations.GET("/stats", migrationHandler.Stats)
			migrations.GET("/:id", migrationHandler.GetBatch)
			migrations.POST("/:id/cancel", migrationHandler.CancelBatch)
			migrations.GET("/:id/items", migrationHandler.GetBatchItems)
			migrations.GET("/:id/logs", migrationHandler.GetBatchLogs)
			migrations.POST("/:id/integrate", migrationHandler.IntegrateBatch)
			migrations.POST("/:id/items/:itemId/resubmit", migrationHandler.ResubmitItem)
		}
	}

	return router
}
