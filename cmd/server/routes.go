package main

import (
	"github.com/chatrelay/backend/internal/middleware"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for credential endpoints
	authLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":          "ok",
			"service":         "chatrelay",
			"active_sessions": svc.broker.ActiveSessions(),
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, throttled)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.POST("/verify", svc.authHandler.Verify)
		}

		// Chat stream (public route with internal token validation,
		// EventSource cannot set an Authorization header)
		api.GET("/chat/stream", svc.chatHandler.Stream)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.authority))
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/chat/complete", svc.chatHandler.Complete)
		}
	}
}
