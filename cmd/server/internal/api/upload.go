package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/audio"
	"github.com/diascribe/diascribe/cmd/server/internal/audit"
	"github.com/diascribe/diascribe/cmd/server/internal/session"
)

// maxUploadSize 单个上传文件的大小上限。
const maxUploadSize = 500 * 1024 * 1024 // 500MB

// allowedUploadExt 支持的上传格式；其余格式在归一前即被拒绝。
var allowedUploadExt = map[string]bool{
	".wav": true,
	".mp3": true,
}

// HandleUploadAudio 接收 multipart 上传（字段名 audio），保存为会话的
// 当前音频并使已缓存的结果失效。
func HandleUploadAudio(mgr *session.Manager, auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := mgr.Get(id); err != nil {
			respondPipeError(c, err)
			return
		}

		file, err := c.FormFile("audio")
		if err != nil {
			respondError(c, http.StatusBadRequest, codeInvalidRequest, "缺少音频文件字段 audio")
			return
		}
		if file.Size > maxUploadSize {
			respondError(c, http.StatusRequestEntityTooLarge, codeUploadTooLarge,
				fmt.Sprintf("文件大小超过限制 (最大 %dMB)", maxUploadSize/(1024*1024)))
			return
		}

		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedUploadExt[ext] {
			respondErrorData(c, http.StatusUnsupportedMediaType, codeUnsupportedFormat,
				fmt.Sprintf("不支持的音频格式: %s", ext),
				gin.H{"allowed": []string{".wav", ".mp3"}})
			return
		}

		src, err := file.Open()
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}
		defer src.Close()

		destPath := mgr.UploadPath(id, file.Filename)
		size, hash, err := audio.SaveUpload(src, destPath)
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}

		if err := mgr.AttachUpload(id, destPath, file.Filename, hash); err != nil {
			respondPipeError(c, err)
			return
		}
		auditLog.LogUpload(id, file.Filename, hash, size, c.ClientIP())

		c.JSON(http.StatusOK, gin.H{
			"session_id":  id,
			"filename":    file.Filename,
			"size_bytes":  size,
			"source_hash": hash,
		})
	}
}
