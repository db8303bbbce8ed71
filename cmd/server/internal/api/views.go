package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/audit"
	"github.com/diascribe/diascribe/cmd/server/internal/export"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/cmd/server/internal/session"
)

// memoizedResult 取会话的缓存结果；没有结果时返回 404。
func memoizedResult(c *gin.Context, mgr *session.Manager) *pipeline.Result {
	s, err := mgr.Get(c.Param("id"))
	if err != nil {
		respondPipeError(c, err)
		return nil
	}
	r := s.Result()
	if r == nil {
		respondError(c, http.StatusNotFound, codeResultNotFound, "会话尚无处理结果")
		return nil
	}
	return r
}

// HandleGetResult 返回会话的完整处理结果。
func HandleGetResult(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := memoizedResult(c, mgr)
		if r == nil {
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// HandleGetTranscript 返回结果的表格或聊天视图投影。
func HandleGetTranscript(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := c.DefaultQuery("view", "table")
		if view != "table" && view != "chat" {
			respondError(c, http.StatusBadRequest, codeInvalidRequest,
				fmt.Sprintf("未知视图 %q（支持 table、chat）", view))
			return
		}

		r := memoizedResult(c, mgr)
		if r == nil {
			return
		}

		switch view {
		case "chat":
			c.JSON(http.StatusOK, export.ChatView(r))
		default:
			c.JSON(http.StatusOK, export.TableView(r))
		}
	}
}

// HandleGetSummary 返回按说话时长排序的说话人占比汇总。
func HandleGetSummary(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := memoizedResult(c, mgr)
		if r == nil {
			return
		}
		c.JSON(http.StatusOK, export.BuildSummary(r))
	}
}

// HandleExport 以 txt/srt/vtt 之一下载转写文本。
func HandleExport(mgr *session.Manager, auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		format, err := export.ParseFormat(c.DefaultQuery("format", "txt"))
		if err != nil {
			respondError(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}

		r := memoizedResult(c, mgr)
		if r == nil {
			return
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, r, format); err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}

		id := c.Param("id")
		auditLog.LogExport(id, string(format), c.ClientIP())

		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s.%s", id, format))
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}
