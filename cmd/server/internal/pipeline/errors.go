package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 表示流水线处理错误类型代码
type ErrorCode string

const (
	// ENV_NOT_READY 环境未就绪（Token、模型、外部服务等）
	ENV_NOT_READY ErrorCode = "ENV_NOT_READY"

	// AUDIO_DECODE_FAILED 上传音频无法读取或解码
	AUDIO_DECODE_FAILED ErrorCode = "AUDIO_DECODE_FAILED"

	// FFMPEG_FAILED FFmpeg 格式归一失败
	FFMPEG_FAILED ErrorCode = "FFMPEG_FAILED"

	// DIARIZE_FAILED 说话人分离失败
	DIARIZE_FAILED ErrorCode = "DIARIZE_FAILED"

	// NO_VALID_SEGMENTS 没有任何保留片段（警告性结果，非失败）
	NO_VALID_SEGMENTS ErrorCode = "NO_VALID_SEGMENTS"

	// TRANSCRIBE_SLICE_FAILED 单个片段转写失败（非致命）
	TRANSCRIBE_SLICE_FAILED ErrorCode = "TRANSCRIBE_SLICE_FAILED"

	// SESSION_NOT_FOUND 会话不存在
	SESSION_NOT_FOUND ErrorCode = "SESSION_NOT_FOUND"

	// RUN_IN_PROGRESS 会话已有处理在进行中
	RUN_IN_PROGRESS ErrorCode = "RUN_IN_PROGRESS"
)

// PipeError 表示流水线处理错误
type PipeError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *PipeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *PipeError) Unwrap() error {
	return e.Cause
}

// NewPipeError 创建新的流水线错误
func NewPipeError(code ErrorCode, message string, cause error) *PipeError {
	return &PipeError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf 提取错误链中的流水线错误代码，非流水线错误返回空串
func CodeOf(err error) ErrorCode {
	var pe *PipeError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// NewEnvNotReadyError 创建环境未就绪错误
func NewEnvNotReadyError(message string) *PipeError {
	return NewPipeError(ENV_NOT_READY, message, nil)
}

// NewAudioDecodeError 创建音频解码失败错误
func NewAudioDecodeError(cause error) *PipeError {
	return NewPipeError(AUDIO_DECODE_FAILED, "上传音频解码失败", cause)
}

// NewFFmpegError 创建 FFmpeg 归一失败错误
func NewFFmpegError(cause error) *PipeError {
	return NewPipeError(FFMPEG_FAILED, "FFmpeg 格式归一失败", cause)
}

// NewDiarizeError 创建说话人分离失败错误
func NewDiarizeError(cause error) *PipeError {
	return NewPipeError(DIARIZE_FAILED, "说话人分离失败", cause)
}

// NewTranscribeSliceError 创建单片段转写失败错误
func NewTranscribeSliceError(turn int, cause error) *PipeError {
	msg := fmt.Sprintf("片段 %d 转写失败", turn)
	return NewPipeError(TRANSCRIBE_SLICE_FAILED, msg, cause)
}

// NewSessionNotFoundError 创建会话不存在错误
func NewSessionNotFoundError(sessionID string) *PipeError {
	msg := fmt.Sprintf("会话不存在: %s", sessionID)
	return NewPipeError(SESSION_NOT_FOUND, msg, nil)
}

// NewRunInProgressError 创建处理进行中错误
func NewRunInProgressError(sessionID string) *PipeError {
	msg := fmt.Sprintf("会话 %s 已有处理在进行中", sessionID)
	return NewPipeError(RUN_IN_PROGRESS, msg, nil)
}
