package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diascribe/diascribe/cmd/server/internal/audio"
	"github.com/diascribe/diascribe/cmd/server/internal/audit"
	"github.com/diascribe/diascribe/cmd/server/internal/diarize"
	"github.com/diascribe/diascribe/cmd/server/internal/health"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/cmd/server/internal/session"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
	"github.com/diascribe/diascribe/cmd/server/internal/ws"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// stubTranscriber 返回固定文本，便于断言记录内容。
type stubTranscriber struct {
	text string
}

func (s stubTranscriber) Transcribe(ctx context.Context, clipPath string, options *transcribe.Options) (*transcribe.Result, error) {
	return &transcribe.Result{Text: s.text, Language: "zh"}, nil
}

func (s stubTranscriber) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (s stubTranscriber) Name() string { return "stub" }

type testEnv struct {
	mgr       *session.Manager
	issuer    *session.TokenIssuer
	auditLog  *audit.Logger
	auditPath string
	pipe      *pipeline.Pipeline
	hub       *ws.Hub
}

// newTestEnvWith 用给定的转写实现搭建一套完整依赖。
// 默认分离结果是两个各一秒的说话人轮次。
func newTestEnvWith(t *testing.T, tr transcribe.Transcriber) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := session.NewManager(filepath.Join(dir, "sessions"), 4, log)
	require.NoError(t, err)

	turns := []diarize.Turn{
		{Start: 0.0, End: 1.0, Speaker: "SPEAKER_00"},
		{Start: 1.0, End: 2.0, Speaker: "SPEAKER_01"},
	}
	auditPath := filepath.Join(dir, "audit", "processing.log")

	return &testEnv{
		mgr:       mgr,
		issuer:    session.NewTokenIssuer(testJWTSecret, time.Hour),
		auditLog:  audit.NewLogger(auditPath),
		auditPath: auditPath,
		pipe: pipeline.NewPipeline(
			diarize.NewMockDiarizer(turns),
			pipeline.FixedTranscriber{T: tr},
			pipeline.Config{FFmpegPath: "/nonexistent/ffmpeg"},
			log, nil),
		hub: ws.NewHub(log),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, stubTranscriber{text: "你好 世界"})
}

// newRouter 按 main.go 的注册方式搭建路由。
func newRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	r.GET("/healthz", HandleHealthz(nil, nil))
	r.POST("/api/v1/sessions", HandleCreateSession(env.mgr, env.issuer))

	authed := r.Group("/api/v1/sessions/:id", SessionAuth(env.issuer))
	authed.DELETE("", HandleDeleteSession(env.mgr))
	authed.POST("/audio", HandleUploadAudio(env.mgr, env.auditLog))
	authed.POST("/process", HandleProcess(env.mgr, env.pipe, env.auditLog))
	authed.GET("/result", HandleGetResult(env.mgr))
	authed.GET("/transcript", HandleGetTranscript(env.mgr))
	authed.GET("/summary", HandleGetSummary(env.mgr))
	authed.GET("/export", HandleExport(env.mgr, env.auditLog))
	authed.GET("/progress", HandleProgress(env.mgr, env.hub))
	return r
}

func doRequest(r http.Handler, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r http.Handler) (string, string) {
	t.Helper()
	w := doRequest(r, "POST", "/api/v1/sessions", "", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.Token)
	return resp.SessionID, resp.Token
}

// wavBytes 生成指定时长的 16kHz 单声道测试 WAV。
func wavBytes(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * audio.TargetSampleRate)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = (i % 2000) - 1000
	}
	path := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, audio.WriteClip(path, samples, audio.TargetSampleRate))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func multipartAudio(t *testing.T, field, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func uploadWAV(t *testing.T, r http.Handler, id, token string, seconds float64) {
	t.Helper()
	body, ct := multipartAudio(t, "audio", "meeting.wav", wavBytes(t, seconds))
	w := doRequest(r, "POST", "/api/v1/sessions/"+id+"/audio", token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var e ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHandleCreateSession(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)

	id, token := createSession(t, r)

	// 会话已注册，token 可验证且绑定到该会话
	_, err := env.mgr.Get(id)
	assert.NoError(t, err)
	sid, err := env.issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, sid)
}

func TestSessionAuth(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	t.Run("missing token", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/result", "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, codeUnauthorized, decodeError(t, w).Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/result", "not-a-jwt", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token for another session", func(t *testing.T) {
		otherID, otherToken := createSession(t, r)
		require.NotEqual(t, id, otherID)

		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/result", otherToken, nil, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, codeForbidden, decodeError(t, w).Code)
	})

	t.Run("token via query param", func(t *testing.T) {
		// WebSocket 客户端无法设置请求头，token 允许放在查询参数里。
		// 通过认证后应得到 404（尚无结果），而不是 401。
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/result?token="+token, "", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, codeResultNotFound, decodeError(t, w).Code)
	})
}

func TestHandleDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	w := doRequest(r, "DELETE", "/api/v1/sessions/"+id, token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp["deleted"])

	// token 仍然有效（无状态 JWT），但会话已不存在
	w = doRequest(r, "DELETE", "/api/v1/sessions/"+id, token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(pipeline.SESSION_NOT_FOUND), decodeError(t, w).Code)
}

func TestHandleHealthz(t *testing.T) {
	t.Run("no checkers", func(t *testing.T) {
		env := newTestEnv(t)
		r := newRouter(env)

		w := doRequest(r, "GET", "/healthz", "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp HealthzResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.False(t, resp.Degraded)
		assert.Empty(t, resp.Services)
	})

	t.Run("with checker snapshot", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		hc := health.NewHealthChecker(stubTranscriber{}, log, time.Minute, 3)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/healthz", nil)

		HandleHealthz(map[string]*health.HealthChecker{"transcriber": hc}, nil)(c)
		require.Equal(t, http.StatusOK, w.Code)

		var resp HealthzResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		require.Contains(t, resp.Services, "transcriber")
		assert.True(t, resp.Services["transcriber"].IsHealthy)
	})
}
