package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/audit"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/cmd/server/internal/session"
	"github.com/diascribe/diascribe/pkg/metrics"
)

// HandleProcess 对会话当前音频同步执行整条流水线并返回结果。
//
// 同一会话同一时刻只允许一次处理（第二次触发返回 409，不排队）。
// 当上一次结果仍然对应当前文件内容时直接返回缓存结果，不重新计算。
func HandleProcess(mgr *session.Manager, pipe *pipeline.Pipeline, auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		s, err := mgr.Get(id)
		if err != nil {
			respondPipeError(c, err)
			return
		}

		uploadPath, _, hash := s.Upload()
		if uploadPath == "" {
			respondError(c, http.StatusBadRequest, codeNoUpload, "会话尚未上传音频")
			return
		}

		// 命中缓存：文件内容未变且已有结果
		if r := s.Result(); r != nil && r.SourceHash == hash {
			metrics.RecordPipelineRun("cached")
			auditLog.LogCachedHit(id, hash)
			c.JSON(http.StatusOK, r)
			return
		}

		release, err := mgr.BeginRun(c.Request.Context(), id)
		if err != nil {
			respondPipeError(c, err)
			return
		}
		defer release()

		start := time.Now()
		result, runErr := pipe.Run(c.Request.Context(), pipeline.RunInput{
			SessionID:  id,
			UploadPath: uploadPath,
			SourceHash: hash,
			WorkDir:    mgr.ScratchDir(id),
		})
		mgr.FinishRun(id, result, runErr)

		if runErr != nil {
			auditLog.LogRun(id, hash, 0, 0, time.Since(start).Milliseconds(), runErr)
			respondPipeError(c, runErr)
			return
		}

		auditLog.LogRun(id, hash, len(result.Records), result.NumSpeakers,
			time.Since(start).Milliseconds(), nil)
		c.JSON(http.StatusOK, result)
	}
}
