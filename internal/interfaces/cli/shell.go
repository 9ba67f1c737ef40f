// Package cli 基于行命令的交互界面，驱动采集控制器
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"standlog/internal/application/port"
	"standlog/internal/application/usecase/capture"
)

// Controller 由 capture.Controller 实现
type Controller interface {
	Connect(ctx context.Context, portID string) error
	Disconnect() error
	Start(ctx context.Context, label string, confirm capture.ConfirmFunc) error
	Stop(ctx context.Context) error
	Ports() ([]string, error)
	Status() capture.Status
}

// History 最近的会话与记录，由 memory.Repo 实现
type History interface {
	Latest() (port.StoredRecord, bool)
	Recent(sessionID string) []port.StoredRecord
	Session(id string) (s port.CaptureSession, endedMs int64, ok bool)
}

const helpText = `commands:
  ports              list serial ports
  connect <port>     open a port and start reading
  disconnect         close the port
  start <label>      start capturing to <label>.csv / <label>.log
  stop               stop capturing
  status             show connection and capture state
  help               show this text
  quit | exit        stop everything and leave
`

// Shell 从 in 逐行读取命令，结果写到 out。
// 控制器的诊断信息经控制台输出，这里只打印查询结果与提示
type Shell struct {
	ctrl    Controller
	history History
	in      io.Reader
	out     io.Writer

	lines <-chan string
}

// NewShell history 可为 nil，此时 status 不显示记录
func NewShell(ctrl Controller, history History, in io.Reader, out io.Writer) *Shell {
	return &Shell{ctrl: ctrl, history: history, in: in, out: out}
}

// Run 处理命令直到 quit、输入结束或 ctx 取消
func (s *Shell) Run(ctx context.Context) error {
	s.lines = scanLines(s.in)
	s.prompt()
	for {
		line, ok := s.next(ctx)
		if !ok {
			return ctx.Err()
		}
		if s.dispatch(ctx, line) {
			return nil
		}
		s.prompt()
	}
}

// scanLines 读取放在独立 goroutine，阻塞的 stdin 不妨碍 ctx 取消
func scanLines(in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			ch <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("command input failed")
		}
	}()
	return ch
}

func (s *Shell) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		return line, ok
	}
}

func (s *Shell) prompt() { fmt.Fprint(s.out, "> ") }

// dispatch 返回 true 表示退出
func (s *Shell) dispatch(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "help", "?":
		fmt.Fprint(s.out, helpText)
	case "ports":
		s.ports()
	case "connect":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: connect <port>")
			break
		}
		_ = s.ctrl.Connect(ctx, arg)
	case "disconnect":
		_ = s.ctrl.Disconnect()
	case "start":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: start <label>")
			break
		}
		_ = s.ctrl.Start(ctx, arg, s.confirm(ctx))
	case "stop":
		_ = s.ctrl.Stop(ctx)
	case "status":
		s.status()
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(s.out, "unknown command %q, type help\n", cmd)
	}
	return false
}

func (s *Shell) ports() {
	ports, err := s.ctrl.Ports()
	if err != nil {
		return
	}
	if len(ports) == 0 {
		fmt.Fprintln(s.out, "no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Fprintln(s.out, p)
	}
}

// confirm 在同一输入上询问是否覆盖；只有 y / yes 表示同意
func (s *Shell) confirm(ctx context.Context) capture.ConfirmFunc {
	return func(label string, existing []string) bool {
		fmt.Fprintf(s.out, "overwrite %s for %q? [y/N] ", strings.Join(existing, ", "), label)
		answer, ok := s.next(ctx)
		if !ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func (s *Shell) status() {
	st := s.ctrl.Status()

	portName := st.Reader.Port
	if portName == "" {
		portName = "-"
	}
	fmt.Fprintf(s.out, "port:    %s (%s) lines=%d records=%d errors=%d\n",
		portName, st.Reader.State, st.Reader.Lines, st.Reader.Records, st.Reader.Errors)

	if st.Capturing {
		fmt.Fprintf(s.out, "capture: %q -> %s\n", st.Destination.Label, strings.Join(st.Destination.Paths(), ", "))
	} else {
		fmt.Fprintln(s.out, "capture: idle")
	}

	if s.history == nil {
		return
	}
	rec, ok := s.history.Latest()
	if !ok {
		return
	}
	fmt.Fprintf(s.out, "last:    #%d moment=%s thrust=%s rpm=%d\n",
		rec.Seq,
		strconv.FormatFloat(rec.Moment, 'f', -1, 64),
		strconv.FormatFloat(rec.Thrust, 'f', -1, 64),
		rec.RPM)

	sess, endedMs, ok := s.history.Session(rec.SessionID)
	if !ok {
		return
	}
	span := "running"
	if endedMs > 0 {
		span = "ended " + clock(endedMs)
	}
	fmt.Fprintf(s.out, "session: %q started %s, %s, %d recent records\n",
		sess.Label, clock(sess.StartedMs), span, len(s.history.Recent(sess.ID)))
}

func clock(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}
