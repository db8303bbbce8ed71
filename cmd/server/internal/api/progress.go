package api

import (
	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/session"
	"github.com/diascribe/diascribe/cmd/server/internal/ws"
)

// HandleProgress 将连接升级为 WebSocket 并订阅会话的进度事件流。
// 会话校验在升级前完成，未知会话返回 JSON 404 而不是握手失败。
func HandleProgress(mgr *session.Manager, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := mgr.Get(id); err != nil {
			respondPipeError(c, err)
			return
		}
		hub.Serve(c.Writer, c.Request, id)
	}
}
