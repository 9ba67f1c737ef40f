package capture

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"standlog/internal/application/port"
)

// Layout 由标签推导目标路径: <Dir>/<label>.<Ext>
type Layout struct {
	Dir       string
	RecordExt string
	LogExt    string
}

// Destination 一次采集的目标（不可变快照）。被禁用的输出路径为空
type Destination struct {
	SessionID  string
	Label      string
	RecordPath string
	LogPath    string
	StartedAt  time.Time
}

// Paths 返回已启用的目标路径
func (d Destination) Paths() []string {
	out := make([]string, 0, 2)
	if d.RecordPath != "" {
		out = append(out, d.RecordPath)
	}
	if d.LogPath != "" {
		out = append(out, d.LogPath)
	}
	return out
}

// ConfirmFunc 目标文件已存在且非空时询问是否覆盖；返回 false 取消采集
type ConfirmFunc func(label string, existing []string) bool

// StateDeps Records / Logs 为 nil 表示对应输出被禁用
type StateDeps struct {
	Layout  Layout
	Records port.RecordSink
	Logs    port.LogSink
	Now     func() time.Time
}

// State 采集会话状态。capturing 与目标路径由同一把锁保护，
// 读取方总是拿到一致的快照
type State struct {
	deps StateDeps

	// transition 串行化 BeginCapture，确认回调期间不持有 mu
	transition sync.Mutex

	mu        sync.RWMutex
	capturing bool
	dest      Destination
}

func NewState(deps StateDeps) *State {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &State{deps: deps}
}

type target struct {
	path string
	sink port.Target
}

// BeginCapture 为 label 准备目标文件并进入采集状态。
// 任一步失败都不改变当前状态；用户拒绝覆盖时不触碰任何文件
func (s *State) BeginCapture(label string, confirm ConfirmFunc) (Destination, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return Destination{}, err
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	if s.IsCapturing() {
		return Destination{}, ErrCaptureActive
	}

	dest := Destination{Label: label}
	var targets []target
	if s.deps.Records != nil {
		dest.RecordPath = s.path(label, s.deps.Layout.RecordExt)
		targets = append(targets, target{path: dest.RecordPath, sink: s.deps.Records})
	}
	if s.deps.Logs != nil {
		dest.LogPath = s.path(label, s.deps.Layout.LogExt)
		targets = append(targets, target{path: dest.LogPath, sink: s.deps.Logs})
	}
	if len(targets) == 0 {
		return Destination{}, ErrNoOutputs
	}

	var existing []string
	for _, t := range targets {
		st, err := t.sink.Inspect(t.path)
		if err != nil {
			return Destination{}, err
		}
		if st == port.FileNonEmpty {
			existing = append(existing, t.path)
		}
	}

	truncate := false
	if len(existing) > 0 {
		if confirm == nil || !confirm(label, existing) {
			return Destination{}, ErrConfirmationDeclined
		}
		truncate = true
	}

	// 先确认所有目标都可写，再截断，避免只截断了其中一部分
	for _, t := range targets {
		if err := t.sink.Writable(t.path); err != nil {
			return Destination{}, err
		}
	}
	for _, t := range targets {
		if err := t.sink.Prepare(t.path, truncate); err != nil {
			return Destination{}, err
		}
	}

	dest.SessionID = uuid.NewString()
	dest.StartedAt = s.deps.Now()

	s.mu.Lock()
	s.capturing = true
	s.dest = dest
	s.mu.Unlock()

	return dest, nil
}

// EndCapture 退出采集状态，不关闭也不删除文件。返回被结束的会话
func (s *State) EndCapture() (Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.capturing {
		return Destination{}, false
	}
	dest := s.dest
	s.capturing = false
	s.dest = Destination{}
	return dest, true
}

func (s *State) IsCapturing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capturing
}

// Destination 返回当前目标；未在采集时 ok 为 false
func (s *State) Destination() (dest Destination, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.capturing {
		return Destination{}, false
	}
	return s.dest, true
}

func (s *State) path(label, ext string) string {
	name := label
	if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
		name += "." + ext
	}
	return filepath.Join(s.deps.Layout.Dir, name)
}

func normalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	switch {
	case label == "", label == ".", label == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	case strings.ContainsAny(label, `/\`+"\x00"):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidLabel, label)
	}
	return label, nil
}
