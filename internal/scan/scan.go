// Package scan enumerates the candidate source files of a watched directory.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/autobackup-watch/autobackup/internal/backup"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// Entry is a directory entry eligible for tracking.
type Entry struct {
	Name string
	Info fs.FileInfo
}

// Skipped is an entry that looked like a file but cannot be tracked.
type Skipped struct {
	Name   string
	Reason error
}

// Result is the outcome of one enumeration.
type Result struct {
	Entries []Entry
	Skipped []Skipped
}

// Enumerate lists the regular files directly inside dir, in name order.
//
// Subdirectories, hidden entries (including the reserved backup directory
// and the state file), backup artifacts and non-regular files are filtered
// silently. Entries whose names cannot be persisted, or that vanish or
// cannot be stat'ed mid-listing, are reported in Skipped.
func Enumerate(dir string) (*Result, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	res := &Result{}
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || Ignored(name) {
			continue
		}

		// Follow symlinks: a link to a regular file is tracked as that file.
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) || de.Type()&fs.ModeSymlink == 0 {
				res.Skipped = append(res.Skipped, Skipped{Name: name, Reason: err})
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := pathutil.ValidateTrackedName(name); err != nil {
			res.Skipped = append(res.Skipped, Skipped{Name: name, Reason: err})
			continue
		}
		res.Entries = append(res.Entries, Entry{Name: name, Info: info})
	}
	return res, nil
}

// Ignored reports whether a name is never a tracking candidate: hidden
// names and backup artifacts.
func Ignored(name string) bool {
	return strings.HasPrefix(name, ".") || backup.IsArtifactName(name)
}
