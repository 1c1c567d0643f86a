// Package fsutil provides filesystem utilities for atomic replacement and
// durable publication of files.
package fsutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPrefix marks in-flight files. Names starting with it are never
// complete artifacts and are hidden from enumeration.
const TempPrefix = ".autobackup-tmp-"

// AtomicWrite writes data to a temporary file, fsyncs, then renames to target path.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	return AtomicWriteFunc(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// AtomicWriteFunc streams the output of fill into a temporary file next to
// path and atomically replaces path with it. On any failure the temporary
// file is removed and path is left as it was.
func AtomicWriteFunc(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("atomic write create tmp: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("atomic write flush: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("atomic write chmod: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("atomic write fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomic write close: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomic write rename: %w", err)
	}
	if err := FsyncDir(dir); err != nil {
		return fmt.Errorf("atomic write fsync dir: %w", err)
	}

	success = true
	return nil
}

var removeFile = os.Remove

// ErrTargetExists is returned by PublishNoReplace when newpath already exists.
var ErrTargetExists = errors.New("target exists")

// PublishNoReplace makes the complete file at oldpath visible as newpath
// without ever overwriting an existing newpath, then removes oldpath and
// fsyncs the parent directory.
func PublishNoReplace(oldpath, newpath string) error {
	err := os.Link(oldpath, newpath)
	switch {
	case err == nil:
		// newpath is already published. A leftover temp name is invisible
		// to listings and must not turn a finished copy into a failure.
		_ = removeFile(oldpath)
	case errors.Is(err, os.ErrExist):
		return ErrTargetExists
	default:
		// Hard links are unsupported on some filesystems. Fall back to
		// check-then-rename, which is safe with a single writer.
		if _, statErr := os.Lstat(newpath); statErr == nil {
			return ErrTargetExists
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("publish stat: %w", statErr)
		}
		if err := os.Rename(oldpath, newpath); err != nil {
			return fmt.Errorf("publish rename: %w", err)
		}
	}
	return FsyncDir(filepath.Dir(newpath))
}

// RenameAndSync renames old to new and fsyncs the parent directory.
func RenameAndSync(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return FsyncDir(filepath.Dir(newpath))
}

// FsyncDir fsyncs a directory to ensure rename visibility is durable.
func FsyncDir(dirPath string) error {
	d, err := os.Open(dirPath)
	if err != nil {
		return fmt.Errorf("fsync dir open: %w", err)
	}
	defer d.Close()
	return d.Sync()
}
