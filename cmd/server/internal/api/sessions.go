package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/session"
)

// HandleCreateSession 创建新会话并签发与之绑定的 bearer token。
// 这是唯一不要求 token 的会话路由。
func HandleCreateSession(mgr *session.Manager, issuer *session.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := mgr.Create()
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}

		token, err := issuer.Issue(s.ID)
		if err != nil {
			// 无法签发 token 的会话没有意义，直接回收
			mgr.Delete(s.ID)
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"session_id": s.ID,
			"token":      token,
		})
	}
}

// HandleDeleteSession 删除会话及其全部暂存文件。
func HandleDeleteSession(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := mgr.Delete(id); err != nil {
			respondPipeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
