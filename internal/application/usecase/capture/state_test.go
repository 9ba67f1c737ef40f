package capture

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standlog/internal/infrastructure/storage/file"
)

func newTestState(dir string) *State {
	return NewState(StateDeps{
		Layout:  Layout{Dir: dir, RecordExt: "csv", LogExt: "log"},
		Records: file.NewRecordSink(),
		Logs:    file.NewLogSink(),
	})
}

func neverAsked(t *testing.T) ConfirmFunc {
	return func(label string, existing []string) bool {
		t.Fatalf("unexpected confirmation for %s: %v", label, existing)
		return false
	}
}

func TestBeginCaptureCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	st := newTestState(dir)

	dest, err := st.BeginCapture("  prop-10x4  ", neverAsked(t))
	require.NoError(t, err)

	assert.Equal(t, "prop-10x4", dest.Label)
	assert.Equal(t, filepath.Join(dir, "prop-10x4.csv"), dest.RecordPath)
	assert.Equal(t, filepath.Join(dir, "prop-10x4.log"), dest.LogPath)
	assert.NotEmpty(t, dest.SessionID)
	assert.False(t, dest.StartedAt.IsZero())

	for _, p := range dest.Paths() {
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, fi.Size())
	}

	assert.True(t, st.IsCapturing())
	got, ok := st.Destination()
	require.True(t, ok)
	assert.Equal(t, dest, got)
}

func TestBeginCaptureEmptyExistingFilesNeedNoConfirmation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.log"), nil, 0o644))

	_, err := newTestState(dir).BeginCapture("p", neverAsked(t))
	require.NoError(t, err)
}

func TestBeginCaptureDeclineKeepsFiles(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "p.csv")
	content := []byte("Moment;Thrust;RPM\n12.5;3.2;4500\n")
	require.NoError(t, os.WriteFile(csv, content, 0o644))

	var asked []string
	st := newTestState(dir)
	_, err := st.BeginCapture("p", func(label string, existing []string) bool {
		asked = existing
		return false
	})
	require.ErrorIs(t, err, ErrConfirmationDeclined)
	assert.Equal(t, []string{csv}, asked)

	got, err := os.ReadFile(csv)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = os.Stat(filepath.Join(dir, "p.log"))
	assert.True(t, os.IsNotExist(err), "declined start must not create files")

	assert.False(t, st.IsCapturing())
	_, ok := st.Destination()
	assert.False(t, ok)
}

func TestBeginCaptureNilConfirmDeclines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.log"), []byte("x\n"), 0o644))

	_, err := newTestState(dir).BeginCapture("p", nil)
	assert.ErrorIs(t, err, ErrConfirmationDeclined)
}

// unwritableLogSink 日志目标打不开写
type unwritableLogSink struct {
	*file.LogSink
}

func (unwritableLogSink) Writable(path string) error {
	return errors.New("open " + path + ": read-only file system")
}

func TestBeginCaptureUnwritableTargetTruncatesNothing(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "p.csv")
	lg := filepath.Join(dir, "p.log")
	require.NoError(t, os.WriteFile(csv, []byte("Moment;Thrust;RPM\n1;2;3\n"), 0o644))
	require.NoError(t, os.WriteFile(lg, []byte("old\n"), 0o644))

	st := NewState(StateDeps{
		Layout:  Layout{Dir: dir, RecordExt: "csv", LogExt: "log"},
		Records: file.NewRecordSink(),
		Logs:    unwritableLogSink{file.NewLogSink()},
	})
	_, err := st.BeginCapture("p", func(string, []string) bool { return true })
	require.ErrorContains(t, err, "read-only")
	assert.False(t, st.IsCapturing())

	got, err := os.ReadFile(csv)
	require.NoError(t, err)
	assert.Equal(t, "Moment;Thrust;RPM\n1;2;3\n", string(got))
	got, err = os.ReadFile(lg)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(got))
}

func TestBeginCaptureConfirmTruncates(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "p.csv")
	lg := filepath.Join(dir, "p.log")
	require.NoError(t, os.WriteFile(csv, []byte("old\n"), 0o644))
	require.NoError(t, os.WriteFile(lg, []byte("old\n"), 0o644))

	var asked []string
	_, err := newTestState(dir).BeginCapture("p", func(_ string, existing []string) bool {
		asked = existing
		return true
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{csv, lg}, asked)

	for _, p := range []string{csv, lg} {
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, fi.Size(), p)
	}
}

func TestBeginCaptureWhileActive(t *testing.T) {
	st := newTestState(t.TempDir())
	first, err := st.BeginCapture("a", nil)
	require.NoError(t, err)

	_, err = st.BeginCapture("b", nil)
	require.ErrorIs(t, err, ErrCaptureActive)

	cur, ok := st.Destination()
	require.True(t, ok)
	assert.Equal(t, first, cur)
}

func TestBeginCaptureInvalidLabel(t *testing.T) {
	st := newTestState(t.TempDir())
	for _, label := range []string{"", "   ", ".", "..", "a/b", `a\b`, "../x"} {
		_, err := st.BeginCapture(label, nil)
		assert.ErrorIs(t, err, ErrInvalidLabel, label)
	}
	assert.False(t, st.IsCapturing())
}

func TestBeginCaptureIOErrorLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	// 同名目录使 Inspect 失败
	require.NoError(t, os.Mkdir(filepath.Join(dir, "p.csv"), 0o755))

	st := newTestState(dir)
	_, err := st.BeginCapture("p", nil)
	require.Error(t, err)
	assert.False(t, st.IsCapturing())
}

func TestBeginCaptureDisabledOutputs(t *testing.T) {
	dir := t.TempDir()

	st := NewState(StateDeps{Layout: Layout{Dir: dir, RecordExt: "csv", LogExt: "log"}, Records: file.NewRecordSink()})
	dest, err := st.BeginCapture("p", nil)
	require.NoError(t, err)
	assert.Empty(t, dest.LogPath)
	assert.Equal(t, []string{filepath.Join(dir, "p.csv")}, dest.Paths())
	_, err = os.Stat(filepath.Join(dir, "p.log"))
	assert.True(t, os.IsNotExist(err))

	_, err = NewState(StateDeps{Layout: Layout{Dir: dir}}).BeginCapture("p", nil)
	assert.ErrorIs(t, err, ErrNoOutputs)
}

func TestEndCapture(t *testing.T) {
	dir := t.TempDir()
	st := newTestState(dir)

	_, ok := st.EndCapture()
	assert.False(t, ok)

	dest, err := st.BeginCapture("p", nil)
	require.NoError(t, err)

	ended, ok := st.EndCapture()
	require.True(t, ok)
	assert.Equal(t, dest, ended)
	assert.False(t, st.IsCapturing())

	// 文件保留，可在新标签下重新开始
	for _, p := range dest.Paths() {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
	_, err = st.BeginCapture("q", nil)
	assert.NoError(t, err)
}

func TestDestinationNeverTorn(t *testing.T) {
	dir := t.TempDir()
	st := newTestState(dir)

	var stop atomic.Bool
	var torn atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				dest, ok := st.Destination()
				if !ok {
					continue
				}
				if dest.SessionID == "" ||
					dest.RecordPath != filepath.Join(dir, dest.Label+".csv") ||
					dest.LogPath != filepath.Join(dir, dest.Label+".log") {
					torn.Add(1)
				}
			}
		}()
	}

	labels := []string{"a", "b", "c"}
	for i := 0; i < 300; i++ {
		_, err := st.BeginCapture(labels[i%len(labels)], func(string, []string) bool { return true })
		require.NoError(t, err)
		_, ok := st.EndCapture()
		require.True(t, ok)
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load())
}
