// Package session manages the per-upload processing sessions: identity,
// lifecycle state, the memoized last pipeline result, the on-disk layout
// under the sessions root, and the concurrency gates that serialize
// pipeline triggers.
package session

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

// State 会话生命周期状态
type State string

const (
	StateCreated    State = "created"    // 已创建，尚未上传音频
	StateUploaded   State = "uploaded"   // 音频已就绪，可触发处理
	StateProcessing State = "processing" // 流水线运行中
	StateDone       State = "done"       // 最近一次运行成功，结果已缓存
	StateFailed     State = "failed"     // 最近一次运行失败
)

// Session scopes one uploaded audio file and at most one cached result.
// All field access goes through the accessor methods; the zero value is
// not usable, construct through the Manager.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	state      State
	uploadPath string
	uploadName string
	sourceHash string
	result     *pipeline.Result

	// flight serializes pipeline triggers for this session. A second
	// trigger while one runs is rejected, never queued.
	flight *semaphore.Weighted
}

func newSession(id string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		state:     StateCreated,
		flight:    semaphore.NewWeighted(1),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Upload returns the stored upload's absolute path, the client's original
// filename and the content md5. All empty before the first upload.
func (s *Session) Upload() (path, name, hash string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploadPath, s.uploadName, s.sourceHash
}

// Result returns the memoized result of the last successful run, or nil.
func (s *Session) Result() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// setUpload records a new upload and invalidates the cached result.
func (s *Session) setUpload(path, name, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadPath = path
	s.uploadName = name
	s.sourceHash = hash
	s.result = nil // 新文件使缓存结果失效
	s.state = StateUploaded
}

func (s *Session) setResult(r *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
	s.state = StateDone
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// tryAcquireRun claims the session's single-flight slot.
func (s *Session) tryAcquireRun() bool {
	return s.flight.TryAcquire(1)
}

func (s *Session) releaseRun() {
	s.flight.Release(1)
}
