package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/batch"
	"github.com/plainhr/plain/internal/config"
	"github.com/plainhr/plain/internal/live"
	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/service"
)

// Deps - всё, что нужно HTTP-слою от остального приложения.
type Deps struct {
	Service *service.Service
	Auth    *auth.Service
	Hub     *live.Hub
	Loaders batch.Source
}

type Server struct {
	cfg        *config.Config
	svc        *service.Service
	auth       *auth.Service
	hub        *live.Hub
	loaders    batch.Source
	logger     *zap.Logger
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		svc:     deps.Service,
		auth:    deps.Auth,
		hub:     deps.Hub,
		loaders: deps.Loaders,
		logger:  logger.Named("HTTPServer"),
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(observeMetrics())
	router.Use(cors.New(s.corsConfig()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/:type/:id/comments", s.commentFeed)

	api := router.Group("/api/v1")
	api.Use(s.withLoaders())

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.register)
		authGroup.POST("/login", s.login)
		authGroup.GET("/me", s.auth.RequireAuth(), s.me)
	}

	optional := s.auth.OptionalAuth()
	required := s.auth.RequireAuth()
	admin := []gin.HandlerFunc{required, s.auth.RequireAdmin()}

	stories := api.Group("/stories")
	{
		stories.GET("", optional, s.listStories)
		stories.GET("/:id", optional, s.getStory)
		stories.POST("", append(admin, s.createStory)...)
		stories.PUT("/:id", required, s.updateStory)
		stories.DELETE("/:id", required, s.deleteStory)
		stories.POST("/:id/verify", append(admin, s.verifyStory)...)
		s.postRoutes(stories, models.PostTypeStory, optional, required)
	}

	lounge := api.Group("/lounge")
	{
		lounge.GET("", optional, s.listLoungePosts)
		lounge.GET("/:id", optional, s.getLoungePost)
		lounge.POST("", required, s.createLoungePost)
		lounge.PUT("/:id", required, s.updateLoungePost)
		lounge.DELETE("/:id", required, s.deleteLoungePost)
		lounge.POST("/:id/promotion", required, s.requestPromotion)
		s.postRoutes(lounge, models.PostTypeLounge, optional, required)
	}

	api.DELETE("/comments/:id", required, s.deleteComment)

	me := api.Group("/me", required)
	{
		me.GET("/scraps", s.listMyScraps)
		me.GET("/level", s.myLevel)
		me.PUT("/profile", s.updateProfile)
	}

	notifications := api.Group("/notifications", required)
	{
		notifications.GET("", s.listNotifications)
		notifications.GET("/unread-count", s.unreadCount)
		notifications.POST("/:id/read", s.markRead)
		notifications.POST("/read-all", s.markAllRead)
	}

	api.GET("/search", s.search)
	api.GET("/search/popular", s.popularKeywords)
	api.GET("/users/:id", s.profile)
	api.GET("/leaderboard", s.leaderboard)

	adminGroup := api.Group("/admin", admin...)
	{
		adminGroup.GET("/promotions", s.listPromotions)
		adminGroup.POST("/promotions/:id/approve", s.approvePromotion)
		adminGroup.POST("/promotions/:id/reject", s.rejectPromotion)
		adminGroup.GET("/stats", s.dashboardStats)
	}

	return router
}

// postRoutes - комментарии и реакции, общие для статей и постов лаунжа.
func (s *Server) postRoutes(group *gin.RouterGroup, postType models.PostType, optional, required gin.HandlerFunc) {
	group.GET("/:id/comments", optional, s.listComments(postType))
	group.POST("/:id/comments", required, s.createComment(postType))
	group.POST("/:id/like", required, s.toggleLike(postType))
	group.POST("/:id/scrap", required, s.toggleScrap(postType))
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 || allowsAnyOrigin(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	cfg.ExposeHeaders = []string{"X-Request-ID"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Run блокируется до остановки сервера. После Shutdown возвращает nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("port", s.cfg.Server.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
