// Package watch implements the optional inbox-folder mode: audio files
// dropped into a watched directory run through the same pipeline as API
// uploads, and the plain-text transcript lands next to the input file.
// Processing failures are logged and skipped; the watcher never takes
// the server down.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/diascribe/diascribe/cmd/server/internal/audio"
	"github.com/diascribe/diascribe/cmd/server/internal/export"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

const (
	// defaultSettle 收到事件后的静默期；期间再有写入就重新计时。
	defaultSettle = 2 * time.Second

	// defaultStablePoll 静默期结束后复查文件大小的间隔。
	defaultStablePoll = 500 * time.Millisecond

	// transcriptSuffix 输出文件后缀，同时用于过滤自己产生的事件。
	transcriptSuffix = ".transcript.txt"
)

// watchableExt 收件目录里认作音频输入的扩展名。
var watchableExt = map[string]bool{
	".wav": true,
	".mp3": true,
}

// Config carries the watcher settings. Zero durations fall back to the
// package defaults; tests shorten them.
type Config struct {
	Dir string

	// ScratchBase is the parent for per-file scratch dirs; empty means
	// the system temp dir.
	ScratchBase string

	Settle     time.Duration
	StablePoll time.Duration
}

// Watcher 监视收件目录并把稳定下来的音频文件送进流水线。
type Watcher struct {
	cfg    Config
	pipe   *pipeline.Pipeline
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer // 按路径防抖

	// runMu 串行化处理：收件目录一次只跑一个文件，
	// 不与 API 会话争抢转写后端。
	runMu sync.Mutex
}

// New 创建收件目录监视器。
func New(cfg Config, pipe *pipeline.Pipeline, logger *slog.Logger) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.StablePoll <= 0 {
		cfg.StablePoll = defaultStablePoll
	}
	return &Watcher{
		cfg:     cfg,
		pipe:    pipe,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Run blocks watching the inbox until the context is cancelled. A setup
// failure (missing directory, no inotify) is returned to the caller,
// which logs it and continues without watch mode.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watch folder started", "dir", w.cfg.Dir)

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !eligible(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// 监视错误不致命，记录后继续
			w.logger.Error("watch error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// eligible 过滤掉非音频文件、隐藏文件和我们自己的输出。
func eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if strings.HasSuffix(base, transcriptSuffix) {
		return false
	}
	return watchableExt[strings.ToLower(filepath.Ext(base))]
}

// schedule (re)arms the per-path debounce timer. Every new write event
// pushes processing out by another settle interval.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.cfg.Settle, func() {
		w.maybeProcess(ctx, path)
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
}

// maybeProcess 在静默期后确认文件大小已经稳定，仍在增长就重新排队。
func (w *Watcher) maybeProcess(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// 文件在静默期内被移走
		w.forget(path)
		return
	}
	size := info.Size()

	time.Sleep(w.cfg.StablePoll)

	info, err = os.Stat(path)
	if err != nil {
		w.forget(path)
		return
	}
	if info.Size() != size {
		w.schedule(ctx, path)
		return
	}

	w.forget(path)
	w.process(ctx, path)
}

// process 用合成会话跑完整条流水线并写出文本转写。
func (w *Watcher) process(ctx context.Context, path string) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	base := filepath.Base(path)
	hash, err := audio.FileMD5(path)
	if err != nil {
		w.logger.Error("watch: cannot hash input", "file", base, "error", err)
		return
	}

	workDir, err := os.MkdirTemp(w.cfg.ScratchBase, "diascribe-watch-*")
	if err != nil {
		w.logger.Error("watch: cannot create scratch dir", "file", base, "error", err)
		return
	}
	defer os.RemoveAll(workDir)

	result, err := w.pipe.Run(ctx, pipeline.RunInput{
		SessionID:  "watch-" + hash[:12],
		UploadPath: path,
		SourceHash: hash,
		WorkDir:    workDir,
	})
	if err != nil {
		w.logger.Error("watch: processing failed", "file", base, "error", err)
		return
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + transcriptSuffix
	if err := w.writeTranscript(outPath, result); err != nil {
		w.logger.Error("watch: cannot write transcript", "file", base, "error", err)
		return
	}
	w.logger.Info("watch: transcript written",
		"file", base,
		"output", filepath.Base(outPath),
		"records", len(result.Records),
		"speakers", result.NumSpeakers)
}

func (w *Watcher) writeTranscript(path string, result *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteText(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
