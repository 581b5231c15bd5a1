package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = gorillaWS.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 跨域由 CORS 配置控制
		return true
	},
}

// StateFunc 返回会话当前状态的序列化结果,会话不存在时 ok 为 false
type StateFunc func(sessionID string) (data []byte, ok bool)

// WebSocketHandler 会话状态订阅处理器
// 连接建立后立即推送一次当前状态,之后每次状态变化推送一次
func WebSocketHandler(hub *Hub, state StateFunc, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 检查会话是否存在
		sessionID := c.Param("id")
		initial, ok := state(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		// 2. 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithError(err).Warn("failed to upgrade websocket connection")
			return
		}

		// 3. 创建并注册客户端
		client := NewClient(uuid.New().String(), sessionID, hub, conn)
		client.Send <- initial
		hub.Register <- client

		// 4. 启动 readPump 和 writePump
		go client.ReadPump(logger)
		go client.WritePump()
	}
}
