// Package audit keeps a tamper-evident journal of tracking and versioning
// events for a watched directory.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/jsonutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

// maxRecord bounds one journal line.
const maxRecord = 1 << 20

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the journal path.
func (a *FileAppender) Path() string {
	return a.path
}

// Append chains rec onto the journal. Timestamp defaults to now; PrevHash
// and RecordHash are always computed here.
func (a *FileAppender) Append(rec model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock journal: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.PrevHash = prevHash
	rec.RecordHash, err = computeRecordHash(&rec)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// ReadAll returns every record in order. A missing journal is empty.
func (a *FileAppender) ReadAll() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	sc := newScanner(file)
	line := 0
	for sc.Scan() {
		line++
		var rec model.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, errclass.ErrAuditChainBroken.WithMessagef("line %d: malformed record", line).Wrap(err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return records, nil
}

// Verify walks the hash chain and returns ErrAuditChainBroken at the first
// record whose hash or back-link does not match.
func (a *FileAppender) Verify() (int, error) {
	records, err := a.ReadAll()
	if err != nil {
		return 0, err
	}
	var prev model.HashValue
	for i := range records {
		rec := &records[i]
		if rec.PrevHash != prev {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: prev_hash does not link to record %d", i+1, i)
		}
		want, err := computeRecordHash(rec)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i+1, err)
		}
		if want != rec.RecordHash {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: record_hash mismatch", i+1)
		}
		prev = rec.RecordHash
	}
	return len(records), nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecord)
	return sc
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	sc := newScanner(file)
	for sc.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan journal: %w", err)
	}
	return lastHash, nil
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	sum, err := jsonutil.Digest(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("record hash: %w", err)
	}
	return model.HashValue(sum), nil
}
