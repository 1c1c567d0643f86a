// Package hasher computes content fingerprints for tracked files.
//
// Fingerprints are SHA-256 digests rendered as lowercase hex. Content is
// streamed in fixed-size chunks so a file never has to be resident in
// memory. Any failure to open or read the content is reported as
// errclass.ErrUnreadable; there is no "empty" fingerprint standing in for
// an unreadable file.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

// ChunkSize is the read buffer used for streaming content.
const ChunkSize = 32 * 1024

// EmptyFingerprint is the SHA-256 of zero bytes.
const EmptyFingerprint model.HashValue = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Digest accumulates a fingerprint over everything written to it.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	return n, err
}

// Sum returns the fingerprint of the bytes written so far.
func (d *Digest) Sum() model.HashValue {
	return model.HashValue(hex.EncodeToString(d.h.Sum(nil)))
}

// Size returns the number of bytes written so far.
func (d *Digest) Size() int64 {
	return d.n
}

// Copy streams src into dst in ChunkSize pieces.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	// Hide ReaderFrom/WriterTo so the bounded buffer is always used.
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}

// Fingerprint reads r to EOF and returns its fingerprint.
func Fingerprint(r io.Reader) (model.HashValue, error) {
	d := NewDigest()
	if _, err := Copy(d, r); err != nil {
		return "", errclass.ErrUnreadable.WithMessage("read content").Wrap(err)
	}
	return d.Sum(), nil
}

// FingerprintFile fingerprints the regular file at path.
func FingerprintFile(path string) (model.HashValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errclass.ErrUnreadable.WithMessage(path).Wrap(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errclass.ErrUnreadable.WithMessage(path).Wrap(err)
	}
	if !info.Mode().IsRegular() {
		return "", errclass.ErrUnreadable.WithMessagef("%s: not a regular file", path)
	}

	d := NewDigest()
	if _, err := Copy(d, f); err != nil {
		return "", errclass.ErrUnreadable.WithMessage(path).Wrap(fmt.Errorf("read: %w", err))
	}
	return d.Sum(), nil
}

// Fingerprinter fingerprints files on disk.
type Fingerprinter interface {
	FingerprintFile(path string) (model.HashValue, error)
}

// SHA256 is the default Fingerprinter.
type SHA256 struct{}

// FingerprintFile implements Fingerprinter.
func (SHA256) FingerprintFile(path string) (model.HashValue, error) {
	return FingerprintFile(path)
}
