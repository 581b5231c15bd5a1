package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/autosave"
	"github.com/mautops/site-editor/internal/editor"
	"github.com/mautops/site-editor/internal/integration"
	"github.com/mautops/site-editor/internal/mutation"
	"github.com/mautops/site-editor/internal/service"
	"github.com/mautops/site-editor/internal/utils"
)

// ErrorHandlerMiddleware 错误处理中间件
// 处理器通过 c.Error 上报的错误在这里统一转换为响应
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		code, message := classify(err)
		Error(c, code, message, err.Error())
	}
}

// classify 将领域错误映射为 HTTP 状态码
func classify(err error) (int, string) {
	var validationErr *utils.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, integration.ErrTemplateNotFound):
		return http.StatusNotFound, "template not found"
	case errors.Is(err, mutation.ErrNotFound):
		return http.StatusNotFound, "block not found"
	case errors.Is(err, mutation.ErrInvalidIntent), errors.Is(err, editor.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid edit"
	case errors.Is(err, mutation.ErrInvariant):
		return http.StatusConflict, "edit rejected"
	case errors.Is(err, editor.ErrClosed), errors.Is(err, autosave.ErrClosed):
		return http.StatusGone, "session closed"
	case errors.Is(err, autosave.ErrPersistence):
		return http.StatusBadGateway, "save failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
