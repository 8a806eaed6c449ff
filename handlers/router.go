package handlers

import (
	"net/http"

	"cms-publisher/metrics"
	"cms-publisher/middleware"
	"cms-publisher/models"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	JWTSecret   string
	Users       services.UserService
	Profile     *ProfileHandler
	Articles    *ArticleHandler
	Tags        *TagHandler
	Connections *ConnectionHandler
	Publishing  *PublishHandler
	Admin       *AdminHandler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware())
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware(deps.JWTSecret, deps.Users))
		{
			protected.GET("/profile", deps.Profile.GetProfile)

			articles := protected.Group("/articles")
			{
				articles.POST("", deps.Articles.CreateArticle)
				articles.GET("", deps.Articles.GetArticles)
				articles.POST("/bulk-publish", deps.Publishing.BulkPublish)
				articles.GET("/:id", deps.Articles.GetArticle)
				articles.PUT("/:id", deps.Articles.UpdateArticle)
				articles.DELETE("/:id", deps.Articles.DeleteArticle)
				articles.POST("/:id/publish-site", deps.Articles.PublishToSite)

				articles.POST("/:id/publish", deps.Publishing.PublishToMultiple)
				articles.POST("/:id/publish/:platform", deps.Publishing.PublishToOne)
				articles.PUT("/:id/publish/:platform", deps.Publishing.UpdatePublishedPost)
				articles.GET("/:id/publish-records", deps.Publishing.ListRecords)
				articles.POST("/:id/schedule", deps.Publishing.Schedule)
			}

			protected.GET("/publish/failures", deps.Publishing.ListFailures)

			tags := protected.Group("/tags")
			{
				tags.POST("", middleware.RequireRole(models.RoleAdmin), deps.Tags.CreateTag)
				tags.GET("", deps.Tags.GetTags)
				tags.GET("/:id", deps.Tags.GetTag)
			}

			connections := protected.Group("/connections")
			{
				connections.GET("", deps.Connections.ListConnections)
				connections.PUT("/:platform", deps.Connections.Connect)
				connections.DELETE("/:platform", deps.Connections.Disconnect)
			}

			admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
			{
				admin.POST("/queue/process", deps.Admin.ProcessQueue)
				admin.POST("/queue/retry", deps.Admin.RetryFailed)
			}
		}

		// Public article routes (published only)
		public := v1.Group("/public")
		{
			public.GET("/articles", deps.Articles.GetPublicArticles)
			public.GET("/articles/:id", deps.Articles.GetPublicArticle)
		}
	}

	return router
}
