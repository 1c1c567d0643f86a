// Package statestore persists the tracked-file registry between runs.
//
// The on-disk format is line oriented: a leading record count, then one
// record per tracked file:
//
//	2
//	a.txt|2cf24dba...9824|1704110400|1
//	b.md|486ea462...b7f7|1704110460|3
//
// Fields are name, fingerprint (lowercase hex), last observed mtime (Unix
// seconds) and version. Readers ignore fields beyond the fourth so newer
// writers can append data without breaking older readers.
package statestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/fsutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// maxLine bounds a single record; file names are far shorter in practice.
const maxLine = 64 * 1024

// Store reads and writes the state file at a fixed path.
type Store struct {
	path string
}

// New creates a Store for path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the state file with files.
func (s *Store) Save(files []model.TrackedFile) error {
	if err := fsutil.AtomicWriteFunc(s.path, 0644, func(w io.Writer) error {
		return Encode(w, files)
	}); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load reads the state file. A missing file yields ErrStateNotFound; a
// file that cannot be parsed yields ErrStateCorrupt.
func (s *Store) Load() ([]model.TrackedFile, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errclass.ErrStateNotFound.WithMessage(s.path)
		}
		return nil, fmt.Errorf("open state: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Quarantine moves a corrupt state file aside so tracking can start fresh
// without destroying the evidence. It returns the new path.
func (s *Store) Quarantine(now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%s", s.path, now.Format("20060102_150405"))
	if err := fsutil.RenameAndSync(s.path, dst); err != nil {
		return "", fmt.Errorf("quarantine state: %w", err)
	}
	return dst, nil
}

// Encode writes files in state format, ordered by name.
func Encode(w io.Writer, files []model.TrackedFile) error {
	sorted := make([]model.TrackedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	if _, err := fmt.Fprintf(w, "%d\n", len(sorted)); err != nil {
		return err
	}
	for _, tf := range sorted {
		if strings.ContainsAny(tf.Name, pathutil.StateDelimiter+"\n\r") {
			return errclass.ErrNameInvalid.WithMessagef("cannot persist name %q", tf.Name)
		}
		if _, err := fmt.Fprintf(w, "%s|%s|%d|%d\n",
			tf.Name, tf.Fingerprint, tf.ModTime.Unix(), tf.Version); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses state format. Version values are returned as written;
// range checks belong to the registry restoring them.
func Decode(r io.Reader) ([]model.TrackedFile, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), maxLine)

	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimRight(sc.Text(), "\r")
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return nil, errclass.ErrStateCorrupt.WithMessage("read header").Wrap(err)
		}
		return nil, errclass.ErrStateCorrupt.WithMessage("empty state file")
	}
	count, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || count < 0 {
		return nil, errclass.ErrStateCorrupt.WithMessagef("line %d: invalid record count %q", lineNo, header)
	}

	files := make([]model.TrackedFile, 0, count)
	for {
		line, ok := next()
		if !ok {
			break
		}
		tf, err := parseRecord(line)
		if err != nil {
			return nil, errclass.ErrStateCorrupt.WithMessagef("line %d: %v", lineNo, err)
		}
		files = append(files, tf)
	}
	if err := sc.Err(); err != nil {
		return nil, errclass.ErrStateCorrupt.WithMessage("read records").Wrap(err)
	}
	if len(files) != count {
		return nil, errclass.ErrStateCorrupt.WithMessagef("header declares %d records, found %d", count, len(files))
	}
	return files, nil
}

func parseRecord(line string) (model.TrackedFile, error) {
	fields := strings.Split(line, pathutil.StateDelimiter)
	if len(fields) < 4 {
		return model.TrackedFile{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	name, fp := fields[0], fields[1]
	if name == "" {
		return model.TrackedFile{}, errors.New("empty name")
	}
	if !isHex(fp) {
		return model.TrackedFile{}, fmt.Errorf("invalid fingerprint %q", fp)
	}
	mtime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return model.TrackedFile{}, fmt.Errorf("invalid mtime %q", fields[2])
	}
	version, err := strconv.Atoi(fields[3])
	if err != nil {
		return model.TrackedFile{}, fmt.Errorf("invalid version %q", fields[3])
	}
	return model.TrackedFile{
		Name:        name,
		Fingerprint: model.HashValue(fp),
		ModTime:     time.Unix(mtime, 0),
		Version:     version,
	}, nil
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
