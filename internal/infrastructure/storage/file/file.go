// Package file 实现采集目标文件：带表头的分号分隔记录文件与原始行日志文件。
//
// 两种文件都只追加。表头是否已写由追加时刻的文件大小决定（0 字节 => 先写表头），
// 因此进程重启后继续写同一路径也不会重复表头。
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"standlog/internal/application/port"
)

// ErrNeedsConfirmation 目标文件已存在且非空，截断前需要用户确认
var ErrNeedsConfirmation = errors.New("destination file is not empty")

// State 目标文件的当前状态
type State = port.FileState

const (
	Missing  = port.FileMissing
	Empty    = port.FileEmpty
	NonEmpty = port.FileNonEmpty
)

// Inspect 返回 path 的状态，不做任何修改
func Inspect(path string) (State, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return Missing, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return Missing, fmt.Errorf("stat %s: is a directory", path)
	}
	if fi.Size() == 0 {
		return Empty, nil
	}
	return NonEmpty, nil
}

// Writable 以写方式打开 path 后立即关闭，不截断；不存在时创建空文件与父目录
func Writable(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return f.Close()
}

// Prepare 准备目标文件：不存在则创建空文件；空文件不动；
// 非空文件只有 truncate 为 true 时才截断，否则返回 ErrNeedsConfirmation
func Prepare(path string, truncate bool) error {
	st, err := Inspect(path)
	if err != nil {
		return err
	}

	switch st {
	case Empty:
		return nil
	case NonEmpty:
		if !truncate {
			return fmt.Errorf("prepare %s: %w", path, ErrNeedsConfirmation)
		}
		if err := os.Truncate(path, 0); err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
		return nil
	}
	return Writable(path)
}

// pathLocks 每个目标路径一把锁，串行化同一文件上的追加
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *pathLocks) get(path string) *sync.Mutex {
	key := filepath.Clean(path)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// appendWith 在路径锁内以追加方式打开文件，build 根据当前大小生成要写入的内容，
// 内容一次写入
func (p *pathLocks) appendWith(path string, build func(size int64) []byte) error {
	l := p.get(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if _, err := f.Write(build(fi.Size())); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
