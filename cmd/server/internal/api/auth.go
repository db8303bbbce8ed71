package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier validates a bearer token and returns the session id it
// is bound to. Satisfied by session.TokenIssuer.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SessionAuth 保护所有 /api/v1/sessions/:id 下的路由：请求必须携带
// 该会话签发的 token，且 token 中的会话 ID 必须与路径参数一致。
//
// Authorization: Bearer <token> is the primary carrier; a `token` query
// parameter is accepted as a fallback because browser WebSocket clients
// cannot set request headers.
func SessionAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			abortError(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		sid, err := verifier.Verify(token)
		if err != nil {
			abortError(c, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}
		if sid != c.Param("id") {
			// token 有效但属于别的会话
			abortError(c, http.StatusForbidden, codeForbidden, "token not issued for this session")
			return
		}

		c.Set("session_id", sid)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("Bearer "):])
}
