package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/api"
	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/integration"
	"github.com/mautops/site-editor/internal/mutation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware...)
	return r
}

// TestRequestIDMiddleware 测试请求 ID 的生成与透传
func TestRequestIDMiddleware(t *testing.T) {
	r := newTestEngine(api.RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(api.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(api.HeaderRequestID, "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))
}

// TestStoreMiddleware_UserID 测试用户标识写入请求上下文
func TestStoreMiddleware_UserID(t *testing.T) {
	r := newTestEngine(api.StoreMiddleware())
	var got any
	r.GET("/whoami", func(c *gin.Context) {
		got = c.Request.Context().Value(integration.UserIDKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(api.HeaderStoreID, "store-1")
	req.Header.Set(api.HeaderUserID, "user-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", got)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(api.HeaderStoreID, "store-1")
	req.Header.Set(api.HeaderUserID, "bad user!")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCORSMiddleware 测试跨域预检
func TestCORSMiddleware(t *testing.T) {
	r := newTestEngine(api.CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"https://shop.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Store-ID"},
		MaxAge:         600,
	}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// TestRateLimitMiddleware 测试按店铺限流
func TestRateLimitMiddleware(t *testing.T) {
	r := newTestEngine(api.RateLimitMiddleware(0.001, 1))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(storeID string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(api.HeaderStoreID, storeID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("store-1"))
	assert.Equal(t, http.StatusTooManyRequests, call("store-1"))
	// 其他店铺不受影响
	assert.Equal(t, http.StatusOK, call("store-2"))
}

// TestSecurityHeaders 测试安全头,HSTS 只在 HTTPS 下发
func TestSecurityHeaders(t *testing.T) {
	r := newTestEngine(api.SecurityHeadersMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

// TestHTTPSRedirectMiddleware 测试 HTTP 请求被重定向
func TestHTTPSRedirectMiddleware(t *testing.T) {
	r := newTestEngine(api.HTTPSRedirectMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping?x=1", nil)
	req.Host = "editor.example.com"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://editor.example.com/ping?x=1", w.Header().Get("Location"))
}

// TestErrorHandlerMiddleware 测试错误映射
func TestErrorHandlerMiddleware(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"区块不存在", mutation.ErrNotFound, http.StatusNotFound},
		{"非法编辑", mutation.ErrInvalidIntent, http.StatusBadRequest},
		{"违反不变量", mutation.ErrInvariant, http.StatusConflict},
		{"模板不存在", integration.ErrTemplateNotFound, http.StatusNotFound},
		{"未知错误", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestEngine(api.ErrorHandlerMiddleware())
			r.GET("/fail", func(c *gin.Context) {
				_ = c.Error(tt.err)
				c.Abort()
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
