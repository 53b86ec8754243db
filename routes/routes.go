package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teamup/handlers"
	"teamup/middleware"
)

type Options struct {
	CORSOrigins []string
	JWTSecret   []byte
	Sessions    middleware.Sessions
	// Limiter is optional. Without it requests are not rate limited.
	Limiter *middleware.IPRateLimiter
	// WebSocket serves /ws when set.
	WebSocket   http.Handler
	VerboseLogs bool
}

func SetupRouter(h *handlers.Handler, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(opts.VerboseLogs))
	router.Use(middleware.PrometheusMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.WebSocket != nil {
		router.GET("/ws", gin.WrapH(opts.WebSocket))
	}

	api := router.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}

	// Public routes
	api.GET("/health", h.Health)
	api.GET("/rules", h.Rules)
	api.GET("/vapid-public-key", h.VapidPublicKey)
	api.POST("/signup", h.Signup)
	api.POST("/login", h.Login)
	api.POST("/password-reset", h.PasswordReset)
	api.POST("/verification", h.ResendVerification)

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(opts.JWTSecret, opts.Sessions))

	// Session
	protected.GET("/me", h.Me)
	protected.POST("/logout", h.Logout)
	protected.GET("/pages", h.Pages)
	protected.PUT("/session/page", h.SetPage)

	// Ideas
	protected.POST("/posts", h.CreatePost)
	protected.GET("/posts", h.ListPosts)
	protected.GET("/posts/:id", h.GetPost)
	protected.PUT("/posts/:id", h.UpdatePost)
	protected.DELETE("/posts/:id", h.DeletePost)
	protected.GET("/posts/:id/members", h.Members)

	// Team and bookmarks
	protected.POST("/posts/:id/join", h.JoinTeam)
	protected.POST("/posts/:id/leave", h.LeaveTeam)
	protected.POST("/posts/:id/bookmark", h.ToggleBookmark)
	protected.GET("/bookmarks", h.ListBookmarks)

	// Milestones and tasks
	protected.POST("/posts/:id/milestones", h.AddMilestone)
	protected.POST("/posts/:id/milestones/:index/complete", h.CompleteMilestone)
	protected.PUT("/posts/:id/milestones/:index/progress", h.SetMilestoneProgress)
	protected.POST("/posts/:id/tasks", h.AddTask)
	protected.POST("/posts/:id/tasks/:index/complete", h.CompleteTask)

	// Team chat
	protected.GET("/posts/:id/messages", h.ListMessages)
	protected.POST("/posts/:id/messages", h.SendMessage)
	protected.DELETE("/posts/:id/messages/:messageId", h.DeleteMessage)

	// Marketplace
	protected.POST("/items", h.CreateItem)
	protected.GET("/items", h.ListItems)
	protected.GET("/items/:id", h.GetItem)
	protected.PUT("/items/:id", h.UpdateItem)
	protected.DELETE("/items/:id", h.DeleteItem)
	protected.POST("/items/:id/reviews", h.AddReview)
	protected.POST("/items/:id/volunteer", h.Volunteer)
	protected.DELETE("/items/:id/volunteer", h.Unvolunteer)

	protected.GET("/profile", h.Profile)
	protected.POST("/upload", h.Upload)
	protected.GET("/stats", h.Stats)

	protected.GET("/notifications", h.ListNotifications)
	protected.POST("/notifications/:id/read", h.MarkNotificationRead)
	protected.POST("/subscribe", h.Subscribe)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.GET("/overview", h.AdminOverview)
	admin.DELETE("/posts/:id", h.AdminDeletePost)
	admin.DELETE("/items/:id", h.AdminDeleteItem)

	router.NoRoute(func(c *gin.Context) {
		message := "Endpoint not found"
		if !strings.HasPrefix(c.Request.URL.Path, "/api") {
			message = "Not found"
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    handlers.CodeNotFound,
				"message": message,
			},
		})
	})

	return router
}
