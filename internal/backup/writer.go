// Package backup writes immutable, versioned copies of tracked files into
// the reserved backup directory.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/autobackup-watch/autobackup/internal/hasher"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/fsutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

// maxSeq bounds the collision disambiguator search.
const maxSeq = 1000

// Writer creates backup artifacts in a single directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the backup directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write copies sourcePath into a new artifact for the given version.
//
// The copy is staged in a hidden temporary file and published under its
// final name only once complete, so a failed write never leaves a file
// that looks like an artifact. An existing artifact is never overwritten:
// if the deterministic name is taken, a "-N" disambiguator is appended
// after the timestamp.
func (w *Writer) Write(sourcePath, baseName, ext string, version int, ts time.Time) (*model.BackupArtifact, error) {
	if version < 1 {
		return nil, errclass.ErrWriteFailed.WithMessagef("invalid version %d", version)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, errclass.ErrWriteFailed.WithMessage("create backup dir").Wrap(err)
	}

	tmpPath, digest, err := w.stage(sourcePath)
	if err != nil {
		return nil, err
	}

	for seq := 0; seq < maxSeq; seq++ {
		name := ArtifactName(baseName, ext, version, ts, seq)
		dst := filepath.Join(w.dir, name)
		err := fsutil.PublishNoReplace(tmpPath, dst)
		if errors.Is(err, fsutil.ErrTargetExists) {
			continue
		}
		if err != nil {
			os.Remove(tmpPath)
			return nil, errclass.ErrWriteFailed.WithMessage(name).Wrap(err)
		}
		return &model.BackupArtifact{
			Path:        dst,
			Name:        name,
			Source:      sourcePath,
			Version:     version,
			CreatedAt:   ts,
			Fingerprint: digest.Sum(),
			Size:        digest.Size(),
		}, nil
	}

	os.Remove(tmpPath)
	return nil, errclass.ErrWriteFailed.WithMessagef("no free artifact name for %s v%d", baseName, version)
}

// stage copies the source into a temporary file in the backup directory,
// fingerprinting the bytes as they are copied.
func (w *Writer) stage(sourcePath string) (string, *hasher.Digest, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", nil, errclass.ErrWriteFailed.WithMessage("open source").Wrap(err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", nil, errclass.ErrWriteFailed.WithMessage("stat source").Wrap(err)
	}

	tmp, err := os.CreateTemp(w.dir, fsutil.TempPrefix+"*")
	if err != nil {
		return "", nil, errclass.ErrWriteFailed.WithMessage("create staging file").Wrap(err)
	}
	tmpPath := tmp.Name()

	fail := func(msg string, err error) (string, *hasher.Digest, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, errclass.ErrWriteFailed.WithMessage(msg).Wrap(err)
	}

	digest := hasher.NewDigest()
	if _, err := hasher.Copy(io.MultiWriter(tmp, digest), src); err != nil {
		return fail("copy source", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return fail("chmod staging file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync staging file", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close staging file", err)
	}
	return tmpPath, digest, nil
}

// Listed is an artifact found in a backup directory.
type Listed struct {
	Name
	File string
	Path string
}

// List returns the artifacts in dir ordered by base, extension, version
// and sequence. A missing directory yields an empty list.
func List(dir string) ([]Listed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Listed
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		n, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		out = append(out, Listed{Name: n, File: e.Name(), Path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		if a.Ext != b.Ext {
			return a.Ext < b.Ext
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Seq < b.Seq
	})
	return out, nil
}
