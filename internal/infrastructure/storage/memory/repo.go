package memory

import (
	"context"
	"sync"

	"standlog/internal/application/port"
)

// DefaultCapacity 保留的最近记录条数
const DefaultCapacity = 256

// MaxSessions 保留的最近会话个数，更早的会话按开始顺序淘汰
const MaxSessions = 32

// Repo 进程内镜像：保留最近的记录与会话，供状态查询使用
type Repo struct {
	mu       sync.RWMutex
	capacity int
	records  []port.StoredRecord
	sessions map[string]port.CaptureSession
	ended    map[string]int64
	order    []string // 会话 id，按开始顺序
}

func New(capacity int) *Repo {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Repo{
		capacity: capacity,
		records:  make([]port.StoredRecord, 0, capacity),
		sessions: make(map[string]port.CaptureSession),
		ended:    make(map[string]int64),
	}
}

func (r *Repo) BeginSession(ctx context.Context, s port.CaptureSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.sessions[s.ID] = s
	for len(r.order) > MaxSessions {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
		delete(r.ended, oldest)
	}
	return nil
}

func (r *Repo) InsertRecord(ctx context.Context, rec port.StoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == r.capacity {
		copy(r.records, r.records[1:])
		r.records = r.records[:len(r.records)-1]
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *Repo) EndSession(ctx context.Context, id string, endedMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 未知或已淘汰的会话不记录结束时间
	if _, ok := r.sessions[id]; ok {
		r.ended[id] = endedMs
	}
	return nil
}

func (r *Repo) Close() error { return nil }

// Latest 返回最近一条记录
func (r *Repo) Latest() (port.StoredRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return port.StoredRecord{}, false
	}
	return r.records[len(r.records)-1], true
}

// Recent 返回某次会话最近的记录（从旧到新）；sessionID 为空时返回全部
func (r *Repo) Recent(sessionID string) []port.StoredRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]port.StoredRecord, 0, len(r.records))
	for _, rec := range r.records {
		if sessionID == "" || rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

// Session 返回会话信息及其结束时间（未结束时为 0）
func (r *Repo) Session(id string) (s port.CaptureSession, endedMs int64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok = r.sessions[id]
	return s, r.ended[id], ok
}

var _ port.RecordRepository = (*Repo)(nil)
