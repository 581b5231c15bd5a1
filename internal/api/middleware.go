package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/site-editor/internal/integration"
	"github.com/mautops/site-editor/internal/utils"
)

const (
	requestIDKey = "request_id"
	storeIDKey   = "store_id"
	userIDKey    = "user_id"

	// HeaderStoreID 店铺标识请求头,由上游网关注入
	HeaderStoreID = "X-Store-ID"
	// HeaderUserID 操作用户请求头,可选
	HeaderUserID = "X-User-ID"
	// HeaderRequestID 请求 ID 请求头
	HeaderRequestID = "X-Request-ID"
)

// RequestIDMiddleware 为每个请求分配请求 ID,优先沿用上游传入的值
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// StoreMiddleware 解析店铺与用户标识
// 店铺标识显式随请求传递,服务端不做任何全局查找
func StoreMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := c.GetHeader(HeaderStoreID)
		if err := utils.ValidateID(storeID); err != nil {
			Error(c, http.StatusBadRequest, "invalid store id", err.Error())
			return
		}
		c.Set(storeIDKey, storeID)

		if userID := c.GetHeader(HeaderUserID); userID != "" {
			if err := utils.ValidateID(userID); err != nil {
				Error(c, http.StatusBadRequest, "invalid user id", err.Error())
				return
			}
			c.Set(userIDKey, userID)
			// 保存记录中的 created_by 从请求上下文读取
			ctx := context.WithValue(c.Request.Context(), integration.UserIDKey, userID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware 安全头中间件
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// 只有 HTTPS 请求才下发 HSTS
		if IsHTTPS(c) {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// HTTPSRedirectMiddleware HTTPS 重定向中间件（生产环境强制 HTTPS）
func HTTPSRedirectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsHTTPS(c) {
			c.Next()
			return
		}
		host := c.Request.Host
		if host == "" {
			host = "localhost"
		}
		c.Redirect(http.StatusMovedPermanently, "https://"+host+c.Request.RequestURI)
		c.Abort()
	}
}

// IsHTTPS 检查请求是否通过 HTTPS（包括反向代理转发的请求）
func IsHTTPS(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		return true
	}
	if c.GetHeader("X-Forwarded-SSL") == "on" {
		return true
	}
	return c.Request.TLS != nil
}

func storeID(c *gin.Context) string {
	return c.GetString(storeIDKey)
}
