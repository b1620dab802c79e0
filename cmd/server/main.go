package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/config"
	"stockledger/internal/database"
	"stockledger/internal/gateway/handlers"
	"stockledger/internal/gateway/middleware"
	"stockledger/internal/services/batch"
	"stockledger/internal/services/catalog"
	"stockledger/internal/services/count"
	"stockledger/internal/services/stock"
	"stockledger/internal/utils"
)

func main() {
	cfg := config.LoadConfig()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	utils.SetSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	catalogSvc := catalog.NewService(db, redisClient)
	batchSvc := batch.NewService(db, redisClient)
	stockSvc := stock.NewService(db, redisClient)
	countSvc := count.NewService(db, redisClient)

	authHandler := handlers.NewAuthHTTPHandler(db, time.Duration(cfg.Auth.TokenTTL)*time.Minute)
	catalogHandler := handlers.NewCatalogHTTPHandler(catalogSvc)
	stockHandler := handlers.NewStockHTTPHandler(stockSvc, batchSvc)
	countHandler := handlers.NewCountHTTPHandler(countSvc)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit("120-M"))

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		items := protected.Group("/items")
		{
			items.POST("", catalogHandler.CreateItem)
			items.GET("", catalogHandler.ListItems)
			items.GET("/low-stock", catalogHandler.ListLowStock)
			items.GET("/:id", catalogHandler.GetItem)
			items.PUT("/:id", catalogHandler.UpdateItem)
			items.DELETE("/:id", catalogHandler.DeleteItem)

			items.POST("/:id/batches", stockHandler.ReceiveBatch)
			items.GET("/:id/batches", stockHandler.ListBatches)
			items.GET("/:id/batches/summary", stockHandler.BatchSummary)
			items.POST("/:id/consume", stockHandler.Consume)
			items.GET("/:id/movements", stockHandler.ListMovements)
			items.GET("/:id/active-counts", countHandler.ActiveCountsForItem)
		}

		batches := protected.Group("/batches")
		{
			batches.GET("/:id", stockHandler.GetBatch)
			batches.PUT("/:id", stockHandler.UpdateBatch)
			batches.DELETE("/:id", stockHandler.DeleteBatch)
			batches.POST("/expire-sweep", stockHandler.ExpireSweep)
		}

		counts := protected.Group("/counts")
		{
			counts.POST("", countHandler.StartCount)
			counts.GET("/:id", countHandler.GetCount)
			counts.GET("/:id/progress", countHandler.GetProgress)
			counts.GET("/:id/items", countHandler.ListEntries)
			counts.POST("/:id/items", countHandler.RecordCount)
			counts.POST("/:id/finish", countHandler.FinishCount)
			counts.DELETE("/:id", countHandler.DeleteCount)
		}

		suppliers := protected.Group("/suppliers")
		{
			suppliers.POST("", catalogHandler.CreateSupplier)
			suppliers.GET("", catalogHandler.ListSuppliers)
			suppliers.GET("/:id", catalogHandler.GetSupplier)
			suppliers.PUT("/:id", catalogHandler.UpdateSupplier)
		}

		locations := protected.Group("/locations")
		{
			locations.POST("", catalogHandler.CreateLocation)
			locations.GET("", catalogHandler.ListLocations)
			locations.GET("/:id", catalogHandler.GetLocation)
		}

		categories := protected.Group("/categories")
		{
			categories.POST("", catalogHandler.CreateCategory)
			categories.GET("", catalogHandler.ListCategories)
		}
	}

	log.Printf("Starting stockledger on %s", cfg.Server.Addr)
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
