package fsutil_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/autobackup-watch/autobackup/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".autobackup_state")
	data := []byte("1\na.txt|abc|10|1\n")

	err := fsutil.AtomicWrite(path, data, 0644)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state")
	os.WriteFile(path, []byte("old"), 0644)

	err := fsutil.AtomicWrite(path, []byte("new"), 0644)
	require.NoError(t, err)

	content, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(content))
}

func TestAtomicWrite_NoTmpLeftOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state")
	fsutil.AtomicWrite(path, []byte("data"), 0644)

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "only the target file should exist")
}

func TestAtomicWriteFunc_FailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	boom := errors.New("boom")
	err := fsutil.AtomicWriteFunc(path, 0644, func(w io.Writer) error {
		io.WriteString(w, "half")
		return boom
	})
	require.ErrorIs(t, err, boom)

	content, _ := os.ReadFile(path)
	assert.Equal(t, "previous", string(content))

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "temporary file must be removed")
}

func TestPublishNoReplace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, fsutil.TempPrefix+"1")
	dst := filepath.Join(dir, "a_v2_backup_20240101_120000.txt")
	require.NoError(t, os.WriteFile(src, []byte("world"), 0644))

	require.NoError(t, fsutil.PublishNoReplace(src, dst))

	assert.NoFileExists(t, src)
	content, _ := os.ReadFile(dst)
	assert.Equal(t, "world", string(content))
}

func TestPublishNoReplace_TempCleanupIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, fsutil.TempPrefix+"1")
	dst := filepath.Join(dir, "a_v2_backup_20240101_120000.txt")
	require.NoError(t, os.WriteFile(src, []byte("world"), 0644))

	restore := fsutil.SetRemoveFile(func(string) error { return os.ErrPermission })
	defer restore()

	require.NoError(t, fsutil.PublishNoReplace(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "world", string(content))
	assert.FileExists(t, src, "temp stays behind when removal fails")
}

func TestPublishNoReplace_ExistingTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, fsutil.TempPrefix+"1")
	dst := filepath.Join(dir, "taken")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	err := fsutil.PublishNoReplace(src, dst)
	assert.ErrorIs(t, err, fsutil.ErrTargetExists)

	content, _ := os.ReadFile(dst)
	assert.Equal(t, "old", string(content), "existing target must not be overwritten")
	assert.FileExists(t, src)
}

func TestRenameAndSync(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("data"), 0644)

	err := fsutil.RenameAndSync(src, dst)
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	content, _ := os.ReadFile(dst)
	assert.Equal(t, "data", string(content))
}

func TestFsyncDir(t *testing.T) {
	dir := t.TempDir()
	err := fsutil.FsyncDir(dir)
	assert.NoError(t, err)
}
