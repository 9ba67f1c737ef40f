package svc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standlog/internal/application/port"
	"standlog/internal/infrastructure/config"
)

type scriptDevice struct {
	reads  chan []byte
	mu     sync.Mutex
	closed bool
}

func (d *scriptDevice) Read(p []byte) (int, error) {
	select {
	case b := <-d.reads:
		return copy(p, b), nil
	case <-time.After(2 * time.Millisecond):
		return 0, nil
	}
}

func (d *scriptDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type scriptOpener struct{ dev *scriptDevice }

func (o *scriptOpener) Open(portID string, _ time.Duration) (port.Device, error) {
	if portID != "COM9" {
		return nil, errors.New("no such port")
	}
	return o.dev, nil
}

func (o *scriptOpener) List() ([]string, error) { return []string{"COM9"}, nil }

type quietConsole struct {
	mu    sync.Mutex
	lines []string
}

func (c *quietConsole) Publish(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}
func (c *quietConsole) Info(string) {}
func (c *quietConsole) Warn(string) {}

func containsText(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Capture.Dir = filepath.Join(dir, "runs")
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(dir, "standlog.db")
	cfg.WebSocket.Enabled = true
	cfg.WebSocket.Addr = "127.0.0.1:0"
	cfg.Serial.ReconnectPauseMs = 20
	require.NoError(t, config.Finalize(cfg))
	return cfg
}

func TestServiceContextCaptureFlow(t *testing.T) {
	cfg := testConfig(t)
	dev := &scriptDevice{reads: make(chan []byte, 8)}
	out := &quietConsole{}

	sc, err := NewWithOptions(context.Background(), cfg, Options{
		Opener:  &scriptOpener{dev: dev},
		Lister:  &scriptOpener{dev: dev},
		Console: out,
	})
	require.NoError(t, err)
	defer sc.Close()

	require.NotEmpty(t, sc.WebSocketAddr())
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+sc.WebSocketAddr()+cfg.WebSocket.Path, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return sc.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	ports, err := sc.Controller.Ports()
	require.NoError(t, err)
	assert.Equal(t, []string{"COM9"}, ports)

	ctx := context.Background()
	require.NoError(t, sc.Controller.Connect(ctx, "COM9"))
	require.NoError(t, sc.Controller.Start(ctx, "bench", nil))

	dev.reads <- []byte("boot ok\nМомент: 12.5 : Сила: 3.2 : Обороты: 4500\n")

	recordPath := filepath.Join(cfg.Capture.Dir, "bench.csv")
	assert.Eventually(t, func() bool {
		b, err := os.ReadFile(recordPath)
		return err == nil && string(b) == "Moment;Thrust;RPM\n12.5;3.2;4500\n"
	}, 2*time.Second, 10*time.Millisecond)

	dest, ok := sc.State.Destination()
	require.True(t, ok)

	var stored []port.StoredRecord
	require.Eventually(t, func() bool {
		stored, err = sc.GetSQLiteRepo().ListRecords(ctx, dest.SessionID)
		return err == nil && len(stored) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 12.5, stored[0].Moment)

	latest, ok := sc.Recent.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(4500), latest.RPM)
	assert.Equal(t, dest.SessionID, latest.SessionID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var mirrored []string
	for !containsText(mirrored, "boot ok") {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		mirrored = append(mirrored, string(msg))
	}

	require.NoError(t, sc.Controller.Stop(ctx))
	logBytes, err := os.ReadFile(filepath.Join(cfg.Capture.Dir, "bench.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logBytes), "boot ok\n")

	require.NoError(t, sc.Close())
	dev.mu.Lock()
	assert.True(t, dev.closed)
	dev.mu.Unlock()
}

func TestServiceContextRejectsUnknownEncoding(t *testing.T) {
	cfg := config.Default()
	cfg.Serial.Encoding = "no-such-charset"
	cfg.Capture.Dir = t.TempDir()

	_, err := NewWithOptions(context.Background(), cfg, Options{Console: &quietConsole{}})
	assert.ErrorIs(t, err, ErrDecoderInitFailed)
}

func TestServiceContextStorageFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Dir = t.TempDir()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(blocker, "db.sqlite")

	_, err := NewWithOptions(context.Background(), cfg, Options{Console: &quietConsole{}})
	assert.ErrorIs(t, err, ErrStorageInitFailed)
}
