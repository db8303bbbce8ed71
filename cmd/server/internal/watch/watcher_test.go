package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diascribe/diascribe/cmd/server/internal/audio"
	"github.com/diascribe/diascribe/cmd/server/internal/diarize"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
)

type fixedTextTranscriber struct {
	text string
}

func (f fixedTextTranscriber) Transcribe(ctx context.Context, clipPath string, options *transcribe.Options) (*transcribe.Result, error) {
	return &transcribe.Result{Text: f.text}, nil
}

func (f fixedTextTranscriber) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (f fixedTextTranscriber) Name() string { return "fixed" }

// countingDiarizer 统计流水线实际跑了几次。
type countingDiarizer struct {
	inner diarize.Diarizer
	runs  atomic.Int32
}

func (c *countingDiarizer) Diarize(ctx context.Context, audioPath string) ([]diarize.Turn, error) {
	c.runs.Add(1)
	return c.inner.Diarize(ctx, audioPath)
}

func (c *countingDiarizer) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (c *countingDiarizer) Name() string { return "counting" }

func startTestWatcher(t *testing.T) (string, *countingDiarizer) {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := &countingDiarizer{
		inner: diarize.NewMockDiarizer([]diarize.Turn{
			{Start: 0.0, End: 1.0, Speaker: "SPEAKER_00"},
		}),
	}
	pipe := pipeline.NewPipeline(d,
		pipeline.FixedTranscriber{T: fixedTextTranscriber{text: "收件箱测试"}},
		pipeline.Config{FFmpegPath: "/nonexistent/ffmpeg"},
		log, nil)

	w := New(Config{Dir: dir, Settle: 80 * time.Millisecond, StablePoll: 20 * time.Millisecond}, pipe, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	// 给 watcher 一点启动时间，避免错过第一个事件
	time.Sleep(50 * time.Millisecond)
	return dir, d
}

func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	n := int(seconds * audio.TargetSampleRate)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = (i % 2000) - 1000
	}
	require.NoError(t, audio.WriteClip(path, samples, audio.TargetSampleRate))
}

func waitForFile(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcherTranscribesDroppedFile(t *testing.T) {
	dir, _ := startTestWatcher(t)

	writeWAV(t, filepath.Join(dir, "meeting.wav"), 1.5)

	outPath := filepath.Join(dir, "meeting.transcript.txt")
	require.True(t, waitForFile(outPath, 5*time.Second), "transcript never appeared")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "[0.00s → 1.00s] SPEAKER_00: 收件箱测试\n", string(data))
}

func TestWatcherIgnoresNonAudioFiles(t *testing.T) {
	dir, d := startTestWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("no audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.wav"), []byte("hidden"), 0644))

	time.Sleep(400 * time.Millisecond)

	matches, err := filepath.Glob(filepath.Join(dir, "*.transcript.txt"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, int32(0), d.runs.Load())
}

func TestWatcherSkipsFailedFileAndContinues(t *testing.T) {
	dir, _ := startTestWatcher(t)

	// mp3 需要 ffmpeg 归一，测试环境里必然失败
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.mp3"), []byte("not mp3"), 0644))
	writeWAV(t, filepath.Join(dir, "good.wav"), 1.5)

	require.True(t, waitForFile(filepath.Join(dir, "good.transcript.txt"), 5*time.Second),
		"watcher died on the failed file")
	assert.NoFileExists(t, filepath.Join(dir, "bad.transcript.txt"))
}

func TestWatcherDebouncesRewrites(t *testing.T) {
	dir, d := startTestWatcher(t)

	path := filepath.Join(dir, "growing.wav")
	writeWAV(t, path, 1.0)
	time.Sleep(30 * time.Millisecond) // 仍在静默期内
	writeWAV(t, path, 2.0)

	require.True(t, waitForFile(filepath.Join(dir, "growing.transcript.txt"), 5*time.Second))

	// 两次写入收敛成一次处理
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), d.runs.Load())
}

func TestEligible(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/inbox/meeting.wav", true},
		{"/inbox/MEETING.WAV", true},
		{"/inbox/call.mp3", true},
		{"/inbox/notes.txt", false},
		{"/inbox/meeting.transcript.txt", false},
		{"/inbox/.hidden.wav", false},
		{"/inbox/video.mp4", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, eligible(tc.path), tc.path)
	}
}
