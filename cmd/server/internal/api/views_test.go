package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diascribe/diascribe/cmd/server/internal/export"
)

func TestHandleGetResultNotReady(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := createSession(t, r)

	w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/result", token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeResultNotFound, decodeError(t, w).Code)
}

func TestHandleGetTranscript(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := processedSession(t, r)

	t.Run("table view is the default", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/transcript", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var rows []export.TableRow
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "SPEAKER_00", rows[0].Speaker)
		assert.Equal(t, "SPEAKER_01", rows[1].Speaker)
		assert.InDelta(t, 1.0, rows[1].Start, 1e-9)
		assert.Equal(t, "你好 世界", rows[0].Text)
	})

	t.Run("chat view", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/transcript?view=chat", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var msgs []export.ChatMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
		require.Len(t, msgs, 2)
		assert.NotEmpty(t, msgs[0].Color)
		assert.NotEqual(t, msgs[0].Color, msgs[1].Color)
		// 两条文本完全相同，第二条被标为重复
		assert.False(t, msgs[0].Repeat)
		assert.True(t, msgs[1].Repeat)
	})

	t.Run("unknown view", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/transcript?view=csv", token, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequest, decodeError(t, w).Code)
	})
}

func TestHandleGetSummary(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := processedSession(t, r)

	w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/summary", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var s export.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, id, s.SessionID)
	assert.Equal(t, 2, s.NumSpeakers)
	assert.InDelta(t, 2.0, s.TotalTalkSec, 1e-9)

	require.Len(t, s.Speakers, 2)
	// 时长相同按说话人名排序
	assert.Equal(t, "SPEAKER_00", s.Speakers[0].Speaker)
	assert.InDelta(t, 1.0, s.Speakers[0].TalkTime, 1e-9)
	assert.InDelta(t, 0.5, s.Speakers[0].Share, 1e-9)
	assert.Equal(t, 1, s.Speakers[0].TurnCount)
}

func TestHandleExport(t *testing.T) {
	env := newTestEnv(t)
	r := newRouter(env)
	id, token := processedSession(t, r)

	t.Run("txt is the default format", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/export", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		want := "[0.00s → 1.00s] SPEAKER_00: 你好 世界\n" +
			"[1.00s → 2.00s] SPEAKER_01: 你好 世界\n"
		assert.Equal(t, want, w.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), id+".txt")
	})

	t.Run("srt", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/export?format=srt", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		want := "1\n00:00:00,000 --> 00:00:01,000\nSPEAKER_00: 你好 世界\n\n" +
			"2\n00:00:01,000 --> 00:00:02,000\nSPEAKER_01: 你好 世界\n\n"
		assert.Equal(t, want, w.Body.String())
		assert.Equal(t, "application/x-subrip", w.Header().Get("Content-Type"))
	})

	t.Run("vtt", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/export?format=vtt", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, len(w.Body.String()) > len("WEBVTT\n\n"))
		assert.Contains(t, w.Body.String(), "00:00:01.000")
		assert.Equal(t, "text/vtt; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("unknown format", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/v1/sessions/"+id+"/export?format=pdf", token, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("export is audited", func(t *testing.T) {
		assert.True(t, auditLogContains(t, env.auditPath, `"event":"export"`))
	})
}
