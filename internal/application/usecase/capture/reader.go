package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"standlog/internal/application/port"
	"standlog/internal/domain/telemetry"
)

// ReaderState 端口读取器的连接状态
type ReaderState int32

const (
	Disconnected ReaderState = iota
	Connecting
	Reading
)

func (s ReaderState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Reading:
		return "reading"
	default:
		return "unknown"
	}
}

const (
	DefaultReadTimeout    = time.Second
	DefaultIdlePause      = 50 * time.Millisecond
	DefaultReconnectPause = time.Second

	mirrorTimeout = 2 * time.Second
	readBufSize   = 4096
)

// LineDecoder 把一行原始字节解码为文本
type LineDecoder interface {
	Decode(b []byte) (string, error)
}

// Line 一行已解码文本及其到达序号
type Line struct {
	Seq  uint64
	Text string
}

type ReaderConfig struct {
	ReadTimeout    time.Duration
	IdlePause      time.Duration
	ReconnectPause time.Duration
	MaxLineBytes   int
}

// ReaderDeps Records / Logs / Repo 可为 nil
type ReaderDeps struct {
	Opener  port.DeviceOpener
	Decoder LineDecoder
	Console port.Console
	State   *State
	Records port.RecordSink
	Logs    port.LogSink
	Repo    port.RecordRepository
	Config  ReaderConfig
	Now     func() time.Time
}

// ReaderStatus 读取器运行状态快照
type ReaderStatus struct {
	State   ReaderState
	Port    string
	Lines   uint64
	Records uint64
	Errors  uint64
}

// Reader 后台读取设备流：解码、分行，送往控制台，采集时解析并落盘
type Reader struct {
	deps ReaderDeps

	mu     sync.Mutex // 保护 port / cancel / done
	port   string
	cancel context.CancelFunc
	done   chan struct{}

	state   atomic.Int32
	seq     atomic.Uint64
	records atomic.Uint64
	errs    atomic.Uint64
}

func NewReader(deps ReaderDeps) *Reader {
	cfg := &deps.Config
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.IdlePause <= 0 {
		cfg.IdlePause = DefaultIdlePause
	}
	if cfg.ReconnectPause <= 0 {
		cfg.ReconnectPause = DefaultReconnectPause
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Reader{deps: deps}
}

// Connect 打开 portID 并启动读取循环。ctx 约束读取循环的生命周期
func (r *Reader) Connect(ctx context.Context, portID string) error {
	portID = strings.TrimSpace(portID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
			r.clearLocked()
		default:
			return ErrAlreadyConnected
		}
	}

	r.setState(Connecting)
	dev, err := r.deps.Opener.Open(portID, r.deps.Config.ReadTimeout)
	if err != nil {
		r.setState(Disconnected)
		return &ConnectionError{Port: portID, Op: "open", Err: err}
	}
	r.setState(Reading)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.port = portID
	r.cancel = cancel
	r.done = done

	log.Info().Str("port", portID).Msg("serial connected")
	go r.run(loopCtx, portID, dev, done)
	return nil
}

// Stop 请求读取循环退出，等待其关闭设备后返回；未连接时返回 false
func (r *Reader) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return false
	}
	r.cancel()
	<-r.done
	r.clearLocked()
	return true
}

// loopDone 读取循环结束时关闭；未连接时返回 nil
func (r *Reader) loopDone() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Reader) Status() ReaderStatus {
	r.mu.Lock()
	p := r.port
	r.mu.Unlock()

	return ReaderStatus{
		State:   ReaderState(r.state.Load()),
		Port:    p,
		Lines:   r.seq.Load(),
		Records: r.records.Load(),
		Errors:  r.errs.Load(),
	}
}

func (r *Reader) clearLocked() {
	r.port = ""
	r.cancel = nil
	r.done = nil
}

func (r *Reader) setState(s ReaderState) { r.state.Store(int32(s)) }

func (r *Reader) run(ctx context.Context, portID string, dev port.Device, done chan struct{}) {
	defer close(done)
	defer func() {
		if dev != nil {
			_ = dev.Close()
		}
		r.setState(Disconnected)
		log.Info().Str("port", portID).Msg("serial reader stopped")
	}()

	cfg := r.deps.Config
	framer := NewFramer(cfg.MaxLineBytes)
	buf := make([]byte, readBufSize)

	for {
		if ctx.Err() != nil {
			return
		}

		if dev == nil {
			r.setState(Connecting)
			d, err := r.deps.Opener.Open(portID, cfg.ReadTimeout)
			if err != nil {
				r.setState(Disconnected)
				log.Debug().Str("port", portID).Err(err).Msg("serial reopen failed")
				if !sleep(ctx, cfg.ReconnectPause) {
					return
				}
				continue
			}
			dev = d
			framer.Reset()
			r.setState(Reading)
			r.deps.Console.Info(fmt.Sprintf("reconnected to %s", portID))
			log.Info().Str("port", portID).Msg("serial reconnected")
			continue
		}

		n, err := dev.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n], func(b []byte) { r.handleBytes(ctx, b) })
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.errs.Add(1)
			cerr := &ConnectionError{Port: portID, Op: "read", Err: err}
			r.deps.Console.Warn(cerr.Error())
			log.Error().Str("port", portID).Err(err).Msg("serial read failed")

			_ = dev.Close()
			dev = nil
			r.setState(Disconnected)
			if !sleep(ctx, cfg.ReconnectPause) {
				return
			}
			continue
		}
		if n == 0 && !sleep(ctx, cfg.IdlePause) {
			return
		}
	}
}

func (r *Reader) handleBytes(ctx context.Context, b []byte) {
	text, err := r.deps.Decoder.Decode(b)
	if err != nil {
		r.errs.Add(1)
		r.deps.Console.Warn(fmt.Sprintf("failed to decode line: %v", err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.handleLine(ctx, Line{Seq: r.seq.Add(1), Text: text})
}

func (r *Reader) handleLine(ctx context.Context, line Line) {
	r.deps.Console.Publish(line.Text)

	dest, ok := r.deps.State.Destination()
	if !ok {
		return
	}

	if dest.LogPath != "" && r.deps.Logs != nil {
		if err := r.deps.Logs.Append(dest.LogPath, line.Text); err != nil {
			r.errs.Add(1)
			r.deps.Console.Warn(fmt.Sprintf("log write failed: %v", err))
			log.Error().Err(err).Str("path", dest.LogPath).Msg("log append failed")
		}
	}

	res := telemetry.Parse(line.Text)
	switch res.Outcome {
	case telemetry.OutcomeNotTelemetry:
		return
	case telemetry.OutcomeMalformed:
		r.errs.Add(1)
		r.deps.Console.Warn(fmt.Sprintf("malformed telemetry line #%d: %v", line.Seq, res.Err))
		return
	}

	if dest.RecordPath != "" && r.deps.Records != nil {
		if err := r.deps.Records.Append(dest.RecordPath, res.Record); err != nil {
			r.errs.Add(1)
			r.deps.Console.Warn(fmt.Sprintf("record write failed: %v", err))
			log.Error().Err(err).Str("path", dest.RecordPath).Msg("record append failed")
			return
		}
		r.records.Add(1)
	}

	if r.deps.Repo != nil {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		err := r.deps.Repo.InsertRecord(mctx, port.StoredRecord{
			SessionID: dest.SessionID,
			Label:     dest.Label,
			Seq:       line.Seq,
			Ts:        r.deps.Now().UnixMilli(),
			Record:    res.Record,
		})
		cancel()
		if err != nil {
			r.errs.Add(1)
			r.deps.Console.Warn(fmt.Sprintf("record mirror failed: %v", err))
			log.Error().Err(err).Str("session", dest.SessionID).Msg("mirror insert failed")
		}
	}
}

// sleep 等待 d 或 ctx 结束；ctx 结束时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
