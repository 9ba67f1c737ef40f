package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"standlog/internal/application/port"
)

type fakeConsole struct {
	mu    sync.Mutex
	lines []string
	infos []string
	warns []string
}

func (c *fakeConsole) Publish(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *fakeConsole) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = append(c.infos, msg)
}

func (c *fakeConsole) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, msg)
}

func (c *fakeConsole) Lines() []string { return c.snapshot(&c.lines) }
func (c *fakeConsole) Infos() []string { return c.snapshot(&c.infos) }
func (c *fakeConsole) Warns() []string { return c.snapshot(&c.warns) }

func (c *fakeConsole) snapshot(s *[]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), (*s)...)
}

type readResult struct {
	data []byte
	err  error
}

// fakeDevice 按脚本返回数据；无数据时模拟读超时返回 (0, nil)
type fakeDevice struct {
	reads  chan readResult
	closed atomic.Bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{reads: make(chan readResult, 64)}
}

func (d *fakeDevice) send(s string)    { d.reads <- readResult{data: []byte(s)} }
func (d *fakeDevice) sendRaw(b []byte) { d.reads <- readResult{data: b} }
func (d *fakeDevice) fail(err error)   { d.reads <- readResult{err: err} }
func (d *fakeDevice) isClosed() bool   { return d.closed.Load() }

func (d *fakeDevice) Read(p []byte) (int, error) {
	select {
	case rr := <-d.reads:
		return copy(p, rr.data), rr.err
	case <-time.After(2 * time.Millisecond):
		return 0, nil
	}
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// fakeOpener 依次消费 errs（nil 表示放行）与 devices
type fakeOpener struct {
	mu      sync.Mutex
	devices []*fakeDevice
	errs    []error
	opens   int
	ports   []string
}

func (o *fakeOpener) Open(portID string, _ time.Duration) (port.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(o.devices) == 0 {
		return nil, errors.New("no such device")
	}
	d := o.devices[0]
	o.devices = o.devices[1:]
	return d, nil
}

func (o *fakeOpener) List() ([]string, error) { return o.ports, nil }

func (o *fakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type utf8Decoder struct{}

func (utf8Decoder) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.New("invalid utf-8")
	}
	return string(b), nil
}

type fakeRepo struct {
	mu       sync.Mutex
	sessions []port.CaptureSession
	records  []port.StoredRecord
	ended    []string
	err      error
}

func (r *fakeRepo) BeginSession(_ context.Context, s port.CaptureSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return r.err
}

func (r *fakeRepo) InsertRecord(_ context.Context, rec port.StoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRepo) EndSession(_ context.Context, id string, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, id)
	return r.err
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) Records() []port.StoredRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]port.StoredRecord(nil), r.records...)
}

func containsAny(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
