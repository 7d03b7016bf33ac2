package main

// @title           Chat Sync API
// @version         1.0
// @description     Users, friend relationships and direct messages with realtime change notifications.
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-sync/internal/adapters/kafka"
	"chat-sync/internal/adapters/storage"
	"chat-sync/internal/api/handlers"
	"chat-sync/internal/api/middleware"
	"chat-sync/internal/api/routes"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/repository"
	"chat-sync/internal/services"
	"chat-sync/internal/websocket"
	"chat-sync/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, _ := config.LoadConfig()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	log.Info("Starting chat-sync server", "publisher", cfg.Server.Publisher, "db", cfg.Database.Driver)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", "error", err)
	}

	// Redis is required for the redis publisher and optional otherwise, where it
	// only backs presence and rate limiting.
	var redisService *services.RedisService
	redisClient, err := database.NewRedisConnection(&cfg.Redis, log)
	switch {
	case err == nil:
		defer redisClient.Close()
		redisService = services.NewRedisService(redisClient, log)
	case cfg.Server.Publisher == "redis":
		log.Fatal("Failed to connect to Redis", "error", err)
	default:
		log.Warn("Redis unavailable, presence and rate limiting disabled", "error", err)
	}

	var presence websocket.Presence
	var online handlers.OnlineLister
	var limiter middleware.RateLimiter
	if redisService != nil {
		presence = redisService
		online = redisService
		limiter = redisService
	}

	hub := websocket.NewHub(presence, log)
	go hub.Run()

	var publisher changefeed.Publisher = hub
	switch cfg.Server.Publisher {
	case "redis":
		publisher = redisService
		hub.BridgeRedis(redisService.SubscribeChanges(context.Background()))
	case "kafka":
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal("Failed to create Kafka producer", "error", err)
		}
		changeProducer := kafka.NewChangeProducer(producer, cfg.Kafka.Topic)
		defer changeProducer.Close()
		publisher = changefeed.Fanout{changeProducer, hub}
	case "hub", "":
	default:
		log.Fatal("Unknown change publisher", "publisher", cfg.Server.Publisher)
	}

	var media handlers.MediaUploader
	if cfg.MinIO.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
			cfg.MinIO.Bucket, cfg.MinIO.UseSSL, cfg.MinIO.PublicURL)
		cancel()
		if err != nil {
			log.Warn("MinIO unavailable, media upload disabled", "error", err)
		} else {
			media = minioClient
		}
	}

	userRepo := repository.NewUserRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	router := routes.NewRouter(routes.Dependencies{
		Config:        cfg,
		Hub:           hub,
		Users:         services.NewUserService(userRepo, publisher, log),
		Relationships: services.NewRelationshipService(relationshipRepo, userRepo, publisher, log),
		Messages:      services.NewMessageService(messageRepo, relationshipRepo, userRepo, publisher, log),
		RateLimiter:   limiter,
		Media:         media,
		Presence:      online,
		Health: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		Logger: log,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
}
