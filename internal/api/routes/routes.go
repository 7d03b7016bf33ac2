package routes

import (
	"net/http"
	"time"

	"chat-sync/internal/api/handlers"
	"chat-sync/internal/api/middleware"
	"chat-sync/internal/config"
	"chat-sync/internal/services"
	"chat-sync/internal/websocket"
	"chat-sync/pkg/logger"

	_ "chat-sync/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the collaborators the router wires into handlers.
// RateLimiter, Media and Presence may be nil.
type Dependencies struct {
	Config        *config.Config
	Hub           *websocket.Hub
	Users         *services.UserService
	Relationships *services.RelationshipService
	Messages      *services.MessageService
	RateLimiter   middleware.RateLimiter
	Media         handlers.MediaUploader
	Presence      handlers.OnlineLister
	Health        func() error
	Logger        *logger.Logger
}

type Router struct {
	engine              *gin.Engine
	deps                Dependencies
	wsHandler           *handlers.WSHandler
	userHandler         *handlers.UserHandler
	relationshipHandler *handlers.RelationshipHandler
	messageHandler      *handlers.MessageHandler
	mediaHandler        *handlers.MediaHandler
	presenceHandler     *handlers.PresenceHandler
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

func NewRouter(deps Dependencies) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	return &Router{
		engine:              engine,
		deps:                deps,
		wsHandler:           handlers.NewWSHandler(deps.Hub, deps.Config.Server.AllowedOrigins),
		userHandler:         handlers.NewUserHandler(deps.Users),
		relationshipHandler: handlers.NewRelationshipHandler(deps.Relationships),
		messageHandler:      handlers.NewMessageHandler(deps.Messages),
		mediaHandler:        handlers.NewMediaHandler(deps.Media),
		presenceHandler:     handlers.NewPresenceHandler(deps.Presence, deps.Relationships),
		rateLimitMW:         middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.Logger),
		authMW:              middleware.NewAuthMiddleware(deps.Config.JWT.Secret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		if r.deps.Health != nil {
			if err := r.deps.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limit := r.deps.Config.Server.RateLimit
	window := r.deps.Config.Server.RateWindow
	if window <= 0 {
		window = time.Minute
	}

	api := r.engine.Group("/api/v1")
	api.Use(r.authMW.RequireAuth())
	api.Use(r.rateLimitMW.RateLimit(limit, window))

	// Profile bootstrap works before the caller has a profile.
	api.POST("/users", r.userHandler.EnsureProfile)

	viewer := api.Group("/")
	viewer.Use(middleware.RequireViewer(r.deps.Users))
	{
		viewer.GET("/ws", r.wsHandler.HandleWebSocket)

		users := viewer.Group("/users")
		{
			users.GET("", r.userHandler.ListUsers)
			users.GET("/me", r.userHandler.GetProfile)
			users.PUT("/me", r.userHandler.UpdateProfile)
		}

		relationships := viewer.Group("/relationships")
		{
			relationships.GET("", r.relationshipHandler.ListRelationships)
			relationships.POST("", r.relationshipHandler.SendRequest)
			relationships.PATCH("/:id", r.relationshipHandler.UpdateRelationship)
			relationships.DELETE("/:id", r.relationshipHandler.DeleteRelationship)
		}

		messages := viewer.Group("/messages")
		{
			messages.GET("", r.messageHandler.ListMessages)
			messages.POST("", r.messageHandler.SendMessage)
			messages.PATCH("", r.messageHandler.MarkSeen)
			messages.PATCH("/:id", r.messageHandler.UpdateMessage)
		}

		viewer.POST("/media", r.mediaHandler.UploadMedia)
		viewer.GET("/presence", r.presenceHandler.GetOnlineFriends)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
