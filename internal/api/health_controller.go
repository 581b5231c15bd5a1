package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/database"
	"github.com/mautops/site-editor/internal/service"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db       *gorm.DB
	sessions service.SessionService
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, sessions service.SessionService) *HealthController {
	return &HealthController{
		db:       db,
		sessions: sessions,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 检查数据库连接
	if c.db != nil {
		if err := database.CheckHealth(ctx.Request.Context(), c.db); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	}
	if c.sessions != nil {
		body["sessions"] = c.sessions.Count()
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	ctx.JSON(httpStatus, body)
}
