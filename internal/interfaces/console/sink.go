package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"standlog/internal/application/port"
)

const (
	ansiReset  = "\033[0m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

// Sink 终端显示面。写入由锁串行化，保证行序
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	now   func() time.Time
}

// NewSink 写到 stdout；输出被重定向时不带颜色
func NewSink() *Sink {
	return NewWriterSink(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

// NewWriterSink color 为 false 时不输出 ANSI 颜色
func NewWriterSink(w io.Writer, color bool) *Sink {
	return &Sink{w: w, color: color, now: time.Now}
}

func (s *Sink) Publish(line string) {
	s.write(line)
}

func (s *Sink) Info(msg string) {
	s.write(s.colorize(fmt.Sprintf("%s * %s", s.now().Format("15:04:05"), msg), ansiDim))
}

func (s *Sink) Warn(msg string) {
	s.write(s.colorize(fmt.Sprintf("%s ! %s", s.now().Format("15:04:05"), msg), ansiYellow))
}

func (s *Sink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *Sink) colorize(str, c string) string {
	if !s.color {
		return str
	}
	return c + str + ansiReset
}

// Fanout 把每次调用按相同顺序转发给多个显示面
type Fanout struct {
	mu      sync.Mutex
	targets []port.Console
}

func NewFanout(targets ...port.Console) *Fanout {
	out := make([]port.Console, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Fanout{targets: out}
}

func (f *Fanout) Publish(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.targets {
		t.Publish(line)
	}
}

func (f *Fanout) Info(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.targets {
		t.Info(msg)
	}
}

func (f *Fanout) Warn(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.targets {
		t.Warn(msg)
	}
}

var (
	_ port.Console = (*Sink)(nil)
	_ port.Console = (*Fanout)(nil)
)
