package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/azure"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/config"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/handler"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/metrics"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/middleware"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/pdf"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/repository"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/security"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("analysis_backend", cfg.Analysis.Backend),
		zap.String("persistence_backend", cfg.Persistence.Backend),
	)

	gw, err := gateway.NewClient(gateway.Endpoints{
		Analysis:      cfg.Endpoints.Analysis,
		Persistence:   cfg.Endpoints.Persistence,
		ProductSearch: cfg.Endpoints.ProductSearch,
	}, cfg.Endpoints.Timeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize endpoint client", zap.Error(err))
	}

	backends := map[string]string{
		"analysis":    cfg.Analysis.Backend,
		"persistence": cfg.Persistence.Backend,
	}

	// Analyzer
	var analyzer service.Analyzer = gw
	if cfg.Analysis.Backend == config.AnalysisOpenAI {
		openAIClient, err := azure.NewOpenAIClient(
			cfg.OpenAI.Endpoint,
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Deployment,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure OpenAI client", zap.Error(err))
		}
		analyzer = openAIClient
	}

	// Persistence
	var (
		persister service.Persister
		pool      *pgxpool.Pool
		repo      *repository.PrescriptionRepository
	)
	switch cfg.Persistence.Backend {
	case config.PersistenceHTTP:
		persister = gw
	case config.PersistencePostgres:
		pool, repo = connectRepository(cfg, logger)
		defer pool.Close()
		persister = repo
	}

	// Image archive
	var archive service.ImageArchive
	if cfg.Storage.Enabled() {
		blobClient, err := newBlobClient(cfg.Storage, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Azure Blob Storage client", zap.Error(err))
		}
		archive = blobClient
		backends["archive"] = "azure-blob"
	}

	// Engines
	clk := clock.New()
	analysisService := service.NewAnalysisService(analyzer, persister, archive, clk, logger)
	resolver := service.NewPurchaseResolver(gw, service.RetailerConfig{
		Name:           cfg.Retailer.Name,
		Domain:         cfg.Retailer.Domain,
		SearchPageBase: cfg.Retailer.SearchPageBase,
		WebSearchBase:  cfg.Retailer.WebSearchBase,
	}, service.NewNoteBoard(clk, cfg.Notes.TTL), logger)
	cartService := service.NewCartService(service.RandomPriceSource{
		Min: cfg.Cart.MinPrice,
		Max: cfg.Cart.MaxPrice,
	}, clk, logger)

	// Removing an item drops its purchase notes
	analysisService.OnRemove(resolver.ForgetItem)

	appMetrics := metrics.New("rx")
	appMetrics.Observe(analysisService, resolver, cartService)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(analysisService, cartService, backends, logger)
	if repo != nil {
		healthHandler.AddCheck("postgres", repo.Ping)
	}
	server := handler.NewServer(
		handler.NewPrescriptionHandler(analysisService, resolver, pdf.NewPDFGenerator(logger), clk, logger),
		handler.NewCartHandler(cartService, analysisService, logger),
		healthHandler,
	)

	swagger, err := api.GetSwagger()
	if err != nil {
		logger.Fatal("Failed to load API contract", zap.Error(err))
	}
	validator, err := middleware.OpenAPIValidationMiddleware(swagger, logger)
	if err != nil {
		logger.Fatal("Failed to build request validator", zap.Error(err))
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLoggingMiddleware(logger))
	r.Use(middleware.ErrorLoggingMiddleware(logger))
	r.Use(middleware.MetricsMiddleware(appMetrics))

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(cfg.Server.RateLimitRPS),
		Burst: cfg.Server.RateLimitBurst,
	})
	r.Use(limiter.RateLimit())
	r.Use(validator)

	r.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	// Register API handlers
	api.RegisterHandlers(r, server)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight analysis, persistence and archive calls finish
	drained := make(chan struct{})
	go func() {
		analysisService.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		logger.Warn("Background work still running at shutdown")
	}

	logger.Info("Server exited")
}

// connectRepository opens the Postgres pool and prepares the prescriptions table
func connectRepository(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, *repository.PrescriptionRepository) {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Persistence.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	var cipher repository.FieldCipher
	if cfg.Persistence.EncryptionKey != "" {
		encryptor, err := security.NewEncryptorFromPassphrase(cfg.Persistence.EncryptionKey)
		if err != nil {
			logger.Fatal("Failed to initialize field encryption", zap.Error(err))
		}
		cipher = encryptor
	} else {
		logger.Warn("No encryption key configured, patient names are stored in clear text")
	}

	repo := repository.NewPrescriptionRepository(pool, cipher, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to prepare database schema", zap.Error(err))
	}
	return pool, repo
}

func newBlobClient(cfg config.StorageConfig, logger *zap.Logger) (*azure.BlobStorageClient, error) {
	if cfg.ConnectionString != "" {
		return azure.NewBlobStorageClientFromConnectionString(cfg.ConnectionString, cfg.Container, logger)
	}
	return azure.NewBlobStorageClient(cfg.AccountName, cfg.AccountKey, cfg.Container, logger)
}
