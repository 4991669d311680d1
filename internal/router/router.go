package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"sunrisetour.staff/internal/config"
	"sunrisetour.staff/internal/handler"
	"sunrisetour.staff/internal/jwt"
	"sunrisetour.staff/internal/middleware"
	"sunrisetour.staff/internal/model"
	"sunrisetour.staff/internal/repository"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	jwtService *jwt.Service,
	tokenRepo *repository.TokenRepository,
	redisClient *redis.Client,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	ticketHandler *handler.TicketHandler,
) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(redisClient, cfg.RateLimit.RequestsPerMinute))
	}

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证接口（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
		}

		// 需要认证的接口
		authenticated := v1.Group("")
		authenticated.Use(middleware.TokenAuth(jwtService, tokenRepo, cfg.JWT.AutoRenewThreshold))
		{
			// 登出
			authenticated.POST("/auth/logout", authHandler.Logout)

			// 用户接口
			user := authenticated.Group("/user")
			{
				user.GET("/profile", userHandler.GetProfile)
				user.GET("/search", chatHandler.SearchUsers)
			}

			// 会话消息接口
			conversations := authenticated.Group("/conversations")
			{
				conversations.GET("", chatHandler.ListConversations)
				conversations.POST("", chatHandler.CreateConversation)
				conversations.GET("/:id/messages", chatHandler.GetMessages)
				conversations.POST("/:id/messages", chatHandler.SendMessage)
			}

			// 工单接口
			tickets := authenticated.Group("/tickets")
			{
				tickets.POST("", ticketHandler.Create)
				tickets.GET("", ticketHandler.List)
				tickets.GET("/:id", ticketHandler.Get)
				tickets.PUT("/:id/status", ticketHandler.UpdateStatus)
				tickets.PUT("/:id/assign", middleware.RequireRole(model.RoleAdmin), ticketHandler.Assign)
			}

			// 统计报表（仅管理员）
			reports := authenticated.Group("/reports")
			reports.Use(middleware.RequireRole(model.RoleAdmin))
			{
				reports.GET("/tickets", ticketHandler.Report)
			}
		}
	}

	return r
}
