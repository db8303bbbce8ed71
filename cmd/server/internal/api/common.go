// Package api contains the HTTP handlers for the diascribe service.
// Handlers are gin.HandlerFunc factories that close over their
// dependencies and are registered in cmd/server/main.go.
//
// Response convention: raw payloads on success, a shared
// {code, message, data} envelope on every error.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

// Surface-level error codes. Pipeline failures carry their own
// pipeline.ErrorCode; these cover request validation and auth.
const (
	codeInvalidRequest    = "INVALID_REQUEST"
	codeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	codeUploadTooLarge    = "UPLOAD_TOO_LARGE"
	codeUnauthorized      = "UNAUTHORIZED"
	codeForbidden         = "FORBIDDEN"
	codeNoUpload          = "NO_UPLOAD"
	codeResultNotFound    = "RESULT_NOT_FOUND"
	codeInternal          = "INTERNAL_ERROR"
)

// ErrorBody 是所有非 2xx 响应共用的错误负载。
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{Code: code, Message: message})
}

func respondErrorData(c *gin.Context, status int, code, message string, data interface{}) {
	c.JSON(status, ErrorBody{Code: code, Message: message, Data: data})
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Code: code, Message: message})
}

// respondPipeError 将流水线错误映射为 HTTP 状态码和错误负载。
// 非流水线错误一律按内部错误处理。
func respondPipeError(c *gin.Context, err error) {
	code := pipeline.CodeOf(err)
	if code == "" {
		respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	respondError(c, httpStatusOf(code), string(code), err.Error())
}

// httpStatusOf 定义流水线错误码到 HTTP 状态码的唯一映射。
func httpStatusOf(code pipeline.ErrorCode) int {
	switch code {
	case pipeline.SESSION_NOT_FOUND:
		return http.StatusNotFound
	case pipeline.RUN_IN_PROGRESS:
		return http.StatusConflict
	case pipeline.AUDIO_DECODE_FAILED, pipeline.FFMPEG_FAILED:
		// 属于"这份上传无法处理"：会话继续接受新上传
		return http.StatusUnprocessableEntity
	case pipeline.DIARIZE_FAILED, pipeline.TRANSCRIBE_SLICE_FAILED:
		return http.StatusBadGateway
	case pipeline.ENV_NOT_READY:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
