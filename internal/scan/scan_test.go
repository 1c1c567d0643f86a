package scan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/autobackup-watch/autobackup/internal/scan"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []scan.Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestEnumerate_Filters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"a.txt",
		"b.md",
		".hidden",
		model.StateFileName,
		"a_v2_backup_20240101_120000.txt",
		"a_v3_backup_20240101_120000-1.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, model.BackupDirName), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	res, err := scan.Enumerate(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.md"}, names(res.Entries))
	assert.Empty(t, res.Skipped)
	for _, e := range res.Entries {
		assert.True(t, e.Info.Mode().IsRegular())
	}
}

func TestEnumerate_SymlinkToFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "dangling.txt")))
	require.NoError(t, os.Symlink(t.TempDir(), filepath.Join(dir, "dirlink")))

	res, err := scan.Enumerate(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"link.txt"}, names(res.Entries))
	assert.Empty(t, res.Skipped, "dangling links are ignored silently")
}

func TestEnumerate_UnpersistableNameSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a|b.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("x"), 0644))

	res, err := scan.Enumerate(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.txt"}, names(res.Entries))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "a|b.txt", res.Skipped[0].Name)
	assert.ErrorIs(t, res.Skipped[0].Reason, errclass.ErrNameInvalid)
}

func TestEnumerate_MissingDir(t *testing.T) {
	_, err := scan.Enumerate(filepath.Join(t.TempDir(), "gone"))
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	assert.True(t, scan.Ignored(".autobackup"))
	assert.True(t, scan.Ignored(".autobackup_state"))
	assert.True(t, scan.Ignored("x_v9_backup_20991231_235959.go"))
	assert.False(t, scan.Ignored("main.go"))
}
