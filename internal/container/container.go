package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/database"
	"github.com/mautops/site-editor/internal/integration"
	"github.com/mautops/site-editor/internal/metrics"
	"github.com/mautops/site-editor/internal/service"
	"github.com/mautops/site-editor/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、会话服务、WebSocket Hub 等
type Container struct {
	db        *gorm.DB
	templates *integration.TemplateStore
	hub       *websocket.Hub
	sessions  service.SessionService
	collector *metrics.Collector
	logger    logrus.FieldLogger
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return newContainer(cfg, db, logger), nil
}

// NewContainerWithDB 使用已有的数据库连接创建容器（用于测试）
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, logger logrus.FieldLogger) *Container {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return newContainer(cfg, db, logger)
}

func newContainer(cfg *config.Config, db *gorm.DB, logger logrus.FieldLogger) *Container {
	// 2. 模板持久化
	templates := integration.NewTemplateStore(db, logger.WithField("component", "template_store"))

	// 3. WebSocket Hub
	hub := websocket.NewHub()

	// 4. 会话服务
	sessions := service.NewSessionService(templates, hub, metrics.NewEditorRecorder(), cfg.Editor, logger.WithField("component", "session"))

	// 5. 指标采集
	collector := metrics.NewCollector(db, sessions.Count, hub.ClientCount, 15*time.Second)

	return &Container{
		db:        db,
		templates: templates,
		hub:       hub,
		sessions:  sessions,
		collector: collector,
		logger:    logger,
	}
}

// Start 启动后台组件
func (c *Container) Start() {
	go c.hub.Run()
	c.collector.Start()
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Templates 获取模板存储
func (c *Container) Templates() *integration.TemplateStore {
	return c.templates
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Sessions 获取会话服务
func (c *Container) Sessions() service.SessionService {
	return c.sessions
}

// Close 关闭容器,写出所有会话的待保存修改后清理资源
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	if err := c.sessions.CloseAll(ctx); err != nil {
		c.logger.WithError(err).Error("failed to flush editor sessions")
		firstErr = err
	}
	c.collector.Stop()
	c.hub.Stop()
	if err := database.Close(c.db); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
