package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/waypool/waypool-backend/internal/config"
	"github.com/waypool/waypool-backend/internal/core"
	"github.com/waypool/waypool-backend/internal/database"
	"github.com/waypool/waypool-backend/internal/handlers"
	"github.com/waypool/waypool-backend/internal/middleware"
	"github.com/waypool/waypool-backend/internal/services"
	"github.com/waypool/waypool-backend/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found, using environment")
	}

	cfg := config.Load()

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := services.InitRedis(); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Initialize WebSocket hub and cross-instance relay
	hub := services.NewHub()
	go hub.Run()
	services.StartConversationRelay(context.Background(), hub)

	// Stand-in for the store's TTL: drop departed rides and expired
	// conversations once a minute.
	database.StartExpirySweep(db, time.Minute)

	bus := services.NewBus(hub, true)
	quota := services.NewRideQuota(cfg.DailyRideQuota)
	svc := core.NewService(store.New(db), cfg, bus, quota)

	r := gin.Default()

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		// WebSocket connection
		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocketHandler(hub, svc))

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			rides := protected.Group("/rides")
			{
				rides.POST("", handlers.CreateRide(svc))
				rides.GET("/current", handlers.GetCurrentRide(svc))
				rides.DELETE("/current", handlers.DeleteCurrentRide(svc))
				rides.GET("/matches", handlers.GetMatches(svc))
			}

			conversations := protected.Group("/conversations")
			{
				conversations.POST("", handlers.InitiateConversation(svc))
				conversations.GET("", handlers.ListConversations(svc))
				conversations.POST("/:id/messages", handlers.SendMessage(svc))
				conversations.POST("/:id/confirm", handlers.Confirm(svc))
				conversations.POST("/:id/decline", handlers.Decline(svc))
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
