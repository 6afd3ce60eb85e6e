package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/whisperlink/chat_backend/config"
	"github.com/whisperlink/chat_backend/controllers"
	"github.com/whisperlink/chat_backend/database"
	"github.com/whisperlink/chat_backend/membership"
	"github.com/whisperlink/chat_backend/middleware"
	"github.com/whisperlink/chat_backend/presence"
	"github.com/whisperlink/chat_backend/store"
	"github.com/whisperlink/chat_backend/websocket"
)

func main() {
	cfg := config.Load()

	// Initialize database
	database.Connect(cfg)
	database.Migrate()

	st := store.NewGormStore(database.DB)

	directory := membership.RoomDirectoryFunc(func(roomID string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		exists, err := st.RoomExists(ctx, roomID)
		if err != nil {
			log.Printf("error checking room %s: %v", roomID, err)
			return false
		}
		return exists
	})

	var members membership.Manager
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("Room membership backed by Redis at %s", cfg.RedisAddr)
		members = membership.NewRedisManager(client, directory)
	} else {
		members = membership.NewMemoryManager(directory)
	}

	tracker := presence.NewTracker()
	hub := websocket.NewHub()
	protocol := websocket.NewProtocol(st, members, tracker, hub, cfg.WellKnownRooms)

	// Set up router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Authentication routes
	auth := router.Group("/api")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		api.POST("/rooms", controllers.CreateRoom)
		api.GET("/rooms/:id", controllers.GetRoom)
		api.GET("/messages", controllers.GetMessages)
	}

	// WebSocket route
	router.GET("/ws", websocket.Handler(hub, protocol, websocket.TokenResolver{}))

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Printf("Server running on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
