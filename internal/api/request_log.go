package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RequestLogMiddleware 请求日志中间件
func RequestLogMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 指标使用路由模板,避免会话 ID 造成标签爆炸
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(method, route, status, latency.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"store_id":   c.GetString(storeIDKey),
			"method":     method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"ip":         c.ClientIP(),
		})

		// 根据状态码选择日志级别
		switch {
		case status >= 500:
			entry.Error("API request")
		case status >= 400:
			entry.Warn("API request")
		default:
			entry.Debug("API request")
		}
	}
}
