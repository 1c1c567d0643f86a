package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTrackedName_Valid(t *testing.T) {
	valid := []string{"a.txt", "notes", "report v2.docx", "archive.tar.gz", "résumé.pdf", "日本語.md"}
	for _, name := range valid {
		assert.NoError(t, pathutil.ValidateTrackedName(name), "should accept: %s", name)
	}
}

func TestValidateTrackedName_Invalid(t *testing.T) {
	invalid := []string{"", ".", "..", "a/b", "a\\b", "a|b.txt", "bad\nname", "hello\x00world", "\xff\xfe"}
	for _, name := range invalid {
		err := pathutil.ValidateTrackedName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "should reject: %q", name)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, base, ext string
	}{
		{"a.txt", "a", ".txt"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"Makefile", "Makefile", ""},
		{"trailing.", "trailing", "."},
	}
	for _, tt := range tests {
		base, ext := pathutil.SplitName(tt.name)
		assert.Equal(t, tt.base, base, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

func TestResolveWatchDir(t *testing.T) {
	dir := t.TempDir()
	got, err := pathutil.ResolveWatchDir(dir + string(filepath.Separator))
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)
}

func TestResolveWatchDir_Invalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	for _, p := range []string{"", filepath.Join(dir, "missing"), file} {
		_, err := pathutil.ResolveWatchDir(p)
		assert.ErrorIs(t, err, errclass.ErrInvalidDirectory, "should reject: %q", p)
	}
}

func TestDisplayWidth(t *testing.T) {
	assert.Equal(t, 5, pathutil.DisplayWidth("a.txt"))
	assert.Equal(t, 9, pathutil.DisplayWidth("日本語.md"))
	assert.Equal(t, "ab   ", pathutil.PadRight("ab", 5))
	assert.Equal(t, "abcdef", pathutil.PadRight("abcdef", 3))
}
