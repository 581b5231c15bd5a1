package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/service"
	"github.com/mautops/site-editor/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config    *config.Config
	DB        *gorm.DB
	Sessions  service.SessionService
	Templates TemplateReader
	Hub       *websocket.Hub
	Logger    logrus.FieldLogger
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = GetLogger()
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(logger))
	if config.IsProduction(cfg) {
		router.Use(HTTPSRedirectMiddleware())
	}
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.Sessions)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler())

	// WebSocket 路由: 订阅会话状态
	if deps.Hub != nil && deps.Sessions != nil {
		router.GET("/ws/sessions/:id", websocket.WebSocketHandler(deps.Hub, deps.Sessions.StateJSON, logger))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(StoreMiddleware())
	{
		if deps.Sessions != nil {
			sessionController := NewSessionController(deps.Sessions)
			sessions := v1.Group("/sessions")
			{
				sessions.POST("", sessionController.Open)
				sessions.GET("/:id", sessionController.Get)
				sessions.DELETE("/:id", sessionController.Close)

				sessions.PUT("/:id/page", sessionController.SelectPage)
				sessions.PUT("/:id/selection", sessionController.SelectBlock)
				sessions.PUT("/:id/view-mode", sessionController.SetViewMode)

				sessions.POST("/:id/blocks", sessionController.AddBlock)
				sessions.PATCH("/:id/blocks/:blockId", sessionController.UpdateBlock)
				sessions.DELETE("/:id/blocks/:blockId", sessionController.DeleteBlock)
				sessions.POST("/:id/blocks/:blockId/move", sessionController.MoveBlock)

				sessions.POST("/:id/undo", sessionController.Undo)
				sessions.POST("/:id/redo", sessionController.Redo)
				sessions.POST("/:id/save", sessionController.Save)
				sessions.POST("/:id/publish", sessionController.Publish)
			}
		}

		if deps.Templates != nil {
			templateController := NewTemplateController(deps.Templates)
			templates := v1.Group("/templates")
			{
				templates.GET("/:id/versions", templateController.ListVersions)
				templates.GET("/:id/published", templateController.GetPublished)
				templates.GET("/:id/saves", templateController.ListSaves)
			}
		}
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
