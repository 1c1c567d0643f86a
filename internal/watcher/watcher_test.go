package watcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobackup-watch/autobackup/internal/audit"
	"github.com/autobackup-watch/autobackup/internal/backup"
	"github.com/autobackup-watch/autobackup/internal/statestore"
	"github.com/autobackup-watch/autobackup/pkg/config"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/logging"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.LevelError)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func newDriver(t *testing.T, dir string, mutate ...func(*Options)) *Driver {
	t.Helper()
	opts := Options{
		Dir:      dir,
		Interval: 20 * time.Millisecond,
		Logger:   quietLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// touchLater rewrites path and moves its mtime forward so the change is
// visible regardless of filesystem timestamp granularity.
func touchLater(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	writeFile(t, path, content)
	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func loadState(t *testing.T, dir string) map[string]model.TrackedFile {
	t.Helper()
	files, err := statestore.New(filepath.Join(dir, model.StateFileName)).Load()
	require.NoError(t, err)
	out := make(map[string]model.TrackedFile)
	for _, f := range files {
		out[f.Name] = f
	}
	return out
}

func TestNew_InvalidDirectory(t *testing.T) {
	_, err := New(Options{Dir: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, errclass.ErrInvalidDirectory)

	file := filepath.Join(t.TempDir(), "f")
	writeFile(t, file, "x")
	_, err = New(Options{Dir: file})
	assert.ErrorIs(t, err, errclass.ErrInvalidDirectory)
}

func TestDriver_FirstCycleTracksWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "b.md"), "world")
	writeFile(t, filepath.Join(dir, ".hidden"), "no")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	stats := d.Cycle(context.Background())
	require.NoError(t, d.Close())

	assert.Equal(t, 2, stats.Tracked)
	assert.Zero(t, stats.Changed)

	state := loadState(t, dir)
	assert.Len(t, state, 2)
	assert.Equal(t, 1, state["a.txt"].Version)

	arts, err := backup.List(filepath.Join(dir, model.BackupDirName))
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.NoFileExists(t, filepath.Join(dir, model.BackupDirName, model.LockFile))
}

func TestDriver_ChangeProducesVersionAndJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, "v1")

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	d.Cycle(context.Background())

	touchLater(t, path, "v2", 2*time.Second)
	stats := d.Cycle(context.Background())
	assert.Equal(t, 1, stats.Changed)

	// Same content, newer mtime: no new version.
	touchLater(t, path, "v2", 4*time.Second)
	stats = d.Cycle(context.Background())
	assert.Zero(t, stats.Changed)
	require.NoError(t, d.Close())

	assert.Equal(t, 2, loadState(t, dir)["notes.txt"].Version)

	arts, err := backup.List(filepath.Join(dir, model.BackupDirName))
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, 2, arts[0].Version)
	data, err := os.ReadFile(arts[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	records, err := audit.NewFileAppender(filepath.Join(dir, model.BackupDirName, model.JournalFile)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.EventTypeTrack, records[0].EventType)
	assert.Equal(t, model.EventTypeVersion, records[1].EventType)
	assert.Equal(t, arts[0].File, records[1].Artifact)
}

func TestDriver_StatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "one")

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	d.Cycle(context.Background())
	touchLater(t, path, "two", 2*time.Second)
	d.Cycle(context.Background())
	require.NoError(t, d.Close())

	d2 := newDriver(t, dir)
	require.NoError(t, d2.Open())
	tf, ok := d2.Registry().Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, 2, tf.Version)

	stats := d2.Cycle(context.Background())
	assert.Zero(t, stats.Tracked)
	assert.Zero(t, stats.Changed)

	touchLater(t, path, "three", 4*time.Second)
	stats = d2.Cycle(context.Background())
	assert.Equal(t, 1, stats.Changed)
	require.NoError(t, d2.Close())
	assert.Equal(t, 3, loadState(t, dir)["a.txt"].Version)
}

func TestDriver_DeletedFileRetained(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "x")

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	d.Cycle(context.Background())
	require.NoError(t, os.Remove(path))

	stats := d.Cycle(context.Background())
	assert.Equal(t, 1, stats.Errors)
	require.NoError(t, d.Close())

	assert.Contains(t, loadState(t, dir), "gone.txt")
}

func TestDriver_UntrackableNameSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a|b.txt"), "x")
	writeFile(t, filepath.Join(dir, "ok.txt"), "y")

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	stats := d.Cycle(context.Background())
	require.NoError(t, d.Close())

	assert.Equal(t, 1, stats.Tracked)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, []string{"ok.txt"}, d.Registry().Names())
}

func TestDriver_CorruptStateAbort(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, model.StateFileName)
	writeFile(t, statePath, "not a number\n")

	d := newDriver(t, dir)
	err := d.Open()
	require.ErrorIs(t, err, errclass.ErrStateCorrupt)

	data, rerr := os.ReadFile(statePath)
	require.NoError(t, rerr)
	assert.Equal(t, "not a number\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, model.BackupDirName, model.LockFile))
}

func TestDriver_CorruptStateDiscard(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, model.StateFileName)
	writeFile(t, statePath, "2\nonly|one\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "x")

	d := newDriver(t, dir, func(o *Options) { o.OnCorrupt = config.CorruptDiscard })
	require.NoError(t, d.Open())
	assert.Zero(t, d.Registry().Len())
	d.Cycle(context.Background())
	require.NoError(t, d.Close())

	matches, err := filepath.Glob(statePath + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Contains(t, loadState(t, dir), "a.txt")

	records, err := audit.NewFileAppender(filepath.Join(dir, model.BackupDirName, model.JournalFile)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, model.EventTypeStateDiscarded, records[0].EventType)
}

func TestDriver_SecondWatcherConflicts(t *testing.T) {
	dir := t.TempDir()
	d1 := newDriver(t, dir)
	require.NoError(t, d1.Open())
	defer d1.Close()

	d2 := newDriver(t, dir)
	assert.ErrorIs(t, d2.Open(), errclass.ErrLockConflict)

	d3 := newDriver(t, dir, func(o *Options) { o.Force = true })
	require.NoError(t, d3.Open())
	require.NoError(t, d3.Close())
}

func TestDriver_RunUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.txt")
	writeFile(t, path, "start")

	var out syncBuffer
	d := newDriver(t, dir, func(o *Options) { o.Out = &out })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Tracking 1 file(s)")
	}, 5*time.Second, 10*time.Millisecond)

	touchLater(t, path, "changed", 2*time.Second)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Backed up")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 2, loadState(t, dir)["live.txt"].Version)
	assert.NoFileExists(t, filepath.Join(dir, model.BackupDirName, model.LockFile))
}

func TestDriver_CancelledCycleStopsEarly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "x")

	d := newDriver(t, dir)
	require.NoError(t, d.Open())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := d.Cycle(ctx)
	require.NoError(t, d.Close())
	assert.Zero(t, stats.Tracked)
}
