package api

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

func TestHandleUploadAudio(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	content := wavBytes(t, 1.0)
	body, ct := multipartAudio(t, "audio", "标准会议.wav", content)
	w := doRequest(r, "POST", "/api/v1/sessions/"+id+"/audio", token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		SessionID  string `json:"session_id"`
		Filename   string `json:"filename"`
		SizeBytes  int64  `json:"size_bytes"`
		SourceHash string `json:"source_hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, "标准会议.wav", resp.Filename)
	assert.Equal(t, int64(len(content)), resp.SizeBytes)
	assert.Len(t, resp.SourceHash, 32) // md5 hex

	// 文件落盘且会话记录了上传
	s, err := env.mgr.Get(id)
	require.NoError(t, err)
	path, name, hash := s.Upload()
	assert.FileExists(t, path)
	assert.Equal(t, "标准会议.wav", name)
	assert.Equal(t, resp.SourceHash, hash)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size())
}

func TestHandleUploadAudioMissingField(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	// 字段名必须是 audio
	body, ct := multipartAudio(t, "file", "meeting.wav", wavBytes(t, 0.5))
	w := doRequest(r, "POST", "/api/v1/sessions/"+id+"/audio", token, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalidRequest, decodeError(t, w).Code)
}

func TestHandleUploadAudioUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	body, ct := multipartAudio(t, "audio", "meeting.flac", []byte("flac data"))
	w := doRequest(r, "POST", "/api/v1/sessions/"+id+"/audio", token, body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	e := decodeError(t, w)
	assert.Equal(t, codeUnsupportedFormat, e.Code)
	assert.NotNil(t, e.Data) // 响应里带出允许的格式列表
}

func TestHandleUploadAudioUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)

	// token 直接给一个不存在的会话 ID 签发，认证通过但会话查不到
	token, err := env.issuer.Issue("ghost-session")
	require.NoError(t, err)

	body, ct := multipartAudio(t, "audio", "meeting.wav", wavBytes(t, 0.5))
	w := doRequest(r, "POST", "/api/v1/sessions/ghost-session/audio", token, body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(pipeline.SESSION_NOT_FOUND), decodeError(t, w).Code)
}
