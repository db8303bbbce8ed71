package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/pkg/metrics"
)

// Manager owns the session registry, the on-disk session layout and the
// server-wide pipeline concurrency cap. Layout under the root:
//
//	<root>/sessions.json        持久化索引
//	<root>/<id>/upload.<ext>    原始上传文件
//	<root>/<id>/scratch/        归一化音频与临时切片
//	<root>/<id>/result.json     最近一次成功运行的结果
type Manager struct {
	root     string
	registry *Registry
	logger   *slog.Logger

	// global bounds the number of concurrently running pipelines across
	// all sessions. Acquire blocks, so triggers beyond the cap queue at
	// the server level rather than failing.
	global *semaphore.Weighted

	// saveMu serializes index writes; two sessions finishing at once must
	// not interleave on the same tmp file.
	saveMu sync.Mutex
}

// NewManager creates the sessions root and an empty registry.
func NewManager(root string, maxConcurrentRuns int64, log *slog.Logger) (*Manager, error) {
	if maxConcurrentRuns <= 0 {
		maxConcurrentRuns = 1
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions root: %w", err)
	}
	return &Manager{
		root:     root,
		registry: NewRegistry(),
		logger:   log,
		global:   semaphore.NewWeighted(maxConcurrentRuns),
	}, nil
}

// Create mints a new session with a uuid id and its directory.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(m.ScratchDir(id), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := newSession(id, time.Now())
	m.registry.Set(s)
	metrics.IncActiveSessions()

	if err := m.SaveIndex(); err != nil {
		m.logger.Warn("failed to persist session index", "session_id", id, "error", err)
	}
	m.logger.Info("session created", "session_id", id)
	return s, nil
}

// Get returns the session or a SESSION_NOT_FOUND error.
func (m *Manager) Get(id string) (*Session, error) {
	s := m.registry.Get(id)
	if s == nil {
		return nil, pipeline.NewSessionNotFoundError(id)
	}
	return s, nil
}

// Delete drops the session and removes its files, scratch included.
func (m *Manager) Delete(id string) error {
	s := m.registry.Delete(id)
	if s == nil {
		return pipeline.NewSessionNotFoundError(id)
	}
	metrics.DecActiveSessions()

	if err := os.RemoveAll(m.SessionDir(id)); err != nil {
		m.logger.Warn("failed to remove session dir", "session_id", id, "error", err)
	}
	if err := m.SaveIndex(); err != nil {
		m.logger.Warn("failed to persist session index", "session_id", id, "error", err)
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// SessionDir returns the session's directory under the root.
func (m *Manager) SessionDir(id string) string {
	return filepath.Join(m.root, id)
}

// ScratchDir returns the session's scratch directory for normalized audio
// and ephemeral clips.
func (m *Manager) ScratchDir(id string) string {
	return filepath.Join(m.root, id, "scratch")
}

// UploadPath returns where an upload with the given client filename is
// stored, preserving only its extension.
func (m *Manager) UploadPath(id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return filepath.Join(m.root, id, "upload"+ext)
}

// AttachUpload records a stored upload on the session. Any cached result
// and its persisted copy are invalidated.
func (m *Manager) AttachUpload(id, path, originalName, hash string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.setUpload(path, originalName, hash)
	os.Remove(m.resultPath(id)) // 旧结果对应旧文件，直接丢弃

	if err := m.SaveIndex(); err != nil {
		m.logger.Warn("failed to persist session index", "session_id", id, "error", err)
	}
	return nil
}

// BeginRun claims the session's single-flight slot and a global concurrency
// slot, in that order. The returned release func must be called once the
// run finishes. A second trigger while one runs fails with RUN_IN_PROGRESS;
// waiting for global capacity respects ctx.
func (m *Manager) BeginRun(ctx context.Context, id string) (func(), error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.tryAcquireRun() {
		return nil, pipeline.NewRunInProgressError(id)
	}
	if err := m.global.Acquire(ctx, 1); err != nil {
		s.releaseRun()
		return nil, err
	}
	s.setState(StateProcessing)

	return func() {
		m.global.Release(1)
		s.releaseRun()
	}, nil
}

// FinishRun records a run outcome: success memoizes and persists the
// result, failure flips the session back so a new trigger can retry.
func (m *Manager) FinishRun(id string, result *pipeline.Result, runErr error) {
	s := m.registry.Get(id)
	if s == nil {
		return // 会话在运行期间被删除
	}

	if runErr != nil {
		s.setState(StateFailed)
	} else {
		s.setResult(result)
		if err := m.writeResult(id, result); err != nil {
			m.logger.Warn("failed to persist result", "session_id", id, "error", err)
		}
	}
	if err := m.SaveIndex(); err != nil {
		m.logger.Warn("failed to persist session index", "session_id", id, "error", err)
	}
}

// persistedSession is the structure saved to disk. Credentials never
// appear here and the upload is stored as a basename only, so the index
// carries no absolute paths.
type persistedSession struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	UploadFile string    `json:"upload_file,omitempty"`
	UploadName string    `json:"upload_name,omitempty"`
	SourceHash string    `json:"source_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type indexFile struct {
	Sessions []persistedSession `json:"sessions"`
}

// SaveIndex persists the registry to sessions.json via tmp+rename.
func (m *Manager) SaveIndex() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	list := []persistedSession{}
	for _, s := range m.registry.List() {
		path, name, hash := s.Upload()
		st := s.State()
		if st == StateProcessing { // 瞬态，重启后回到可触发状态
			st = StateUploaded
		}

		ps := persistedSession{
			ID:         s.ID,
			State:      st,
			UploadName: name,
			SourceHash: hash,
			CreatedAt:  s.CreatedAt,
		}
		if path != "" {
			ps.UploadFile = filepath.Base(path)
		}
		list = append(list, ps)
	}

	b, err := json.MarshalIndent(indexFile{Sessions: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	statePath := m.indexPath()
	tmp := statePath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmp, statePath); err != nil {
		return fmt.Errorf("rename tmp file: %w", err)
	}
	return nil
}

// LoadIndex restores persisted sessions into the registry. Upload paths
// are rebuilt from the session directory; a session whose upload file is
// gone falls back to created, and a done session whose result file is
// gone falls back to uploaded.
func (m *Manager) LoadIndex() error {
	b, err := os.ReadFile(m.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no file yet
		}
		return fmt.Errorf("read sessions file: %w", err)
	}

	var wrapper indexFile
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return fmt.Errorf("unmarshal sessions: %w", err)
	}

	now := time.Now()
	count := 0
	for _, ps := range wrapper.Sessions {
		// Skip hidden (dot-prefixed) ids such as .svn
		if strings.HasPrefix(ps.ID, ".") {
			continue
		}

		if ps.CreatedAt.IsZero() {
			ps.CreatedAt = now
		}
		if err := os.MkdirAll(m.ScratchDir(ps.ID), 0o755); err != nil {
			m.logger.Warn("failed to recreate session dir", "session_id", ps.ID, "error", err)
			continue
		}

		s := newSession(ps.ID, ps.CreatedAt)
		st := ps.State
		if st == StateProcessing {
			st = StateUploaded
		}

		if ps.UploadFile != "" {
			uploadPath := filepath.Join(m.SessionDir(ps.ID), filepath.Base(ps.UploadFile))
			if _, statErr := os.Stat(uploadPath); statErr == nil {
				s.uploadPath = uploadPath
				s.uploadName = ps.UploadName
				s.sourceHash = ps.SourceHash
			} else {
				st = StateCreated // 上传文件已丢失
			}
		}

		if st == StateDone {
			r, readErr := m.readResult(ps.ID)
			if readErr != nil || r == nil {
				st = StateUploaded // 结果文件已丢失，需要重跑
			} else {
				s.result = r
			}
		}
		s.state = st

		m.registry.Set(s)
		metrics.IncActiveSessions()
		count++
	}

	if count > 0 {
		m.logger.Info("loaded sessions", "count", count, "path", m.indexPath())
	}
	return nil
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.root, "sessions.json")
}

func (m *Manager) resultPath(id string) string {
	return filepath.Join(m.SessionDir(id), "result.json")
}

// writeResult persists a finished result beside the session's upload.
func (m *Manager) writeResult(id string, r *pipeline.Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	path := m.resultPath(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp file: %w", err)
	}
	return nil
}

func (m *Manager) readResult(id string) (*pipeline.Result, error) {
	b, err := os.ReadFile(m.resultPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var r pipeline.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}
