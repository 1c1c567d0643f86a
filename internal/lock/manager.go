// Package lock keeps a single watcher per directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/fsutil"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

// State is the observed condition of a directory lock.
type State string

const (
	StateFree  State = "free"
	StateHeld  State = "held"
	StateStale State = "stale"
)

// Manager acquires and releases the lock file of one watched directory.
type Manager struct {
	path     string
	hostname string
	alive    func(pid int) bool
	mu       sync.Mutex
}

// NewManager creates a Manager for the lock file inside backupDir.
func NewManager(backupDir string) *Manager {
	host, _ := os.Hostname()
	return &Manager{
		path:     filepath.Join(backupDir, model.LockFile),
		hostname: host,
		alive:    processAlive,
	}
}

// Path returns the lock file path.
func (m *Manager) Path() string {
	return m.path
}

// Acquire takes the lock for this process. A lock held by a live process
// yields ErrLockConflict unless force is set. A stale lock (holder process
// gone on this host) is taken over.
func (m *Manager) Acquire(sessionID string, force bool) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	rec := &model.LockRecord{
		HolderNonce: uuid.NewString(),
		SessionID:   sessionID,
		PID:         os.Getpid(),
		Hostname:    m.hostname,
		AcquiredAt:  time.Now().UTC(),
	}

	// Try O_CREAT|O_EXCL for atomic acquire
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		defer file.Close()
		if err := writeLock(file, rec); err != nil {
			os.Remove(m.path)
			return nil, err
		}
		return rec, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	existing, readErr := m.readLock()
	switch {
	case readErr != nil:
		// Unparseable lock file: a crash between create and write.
		if !force {
			return nil, errclass.ErrLockConflict.WithMessagef("unreadable lock file %s (use --force)", m.path)
		}
	case m.state(existing) == StateHeld && !force:
		return nil, errclass.ErrLockConflict.WithMessagef(
			"directory is watched by pid %d on %s since %s",
			existing.PID, existing.Hostname, existing.AcquiredAt.Format(time.RFC3339))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}
	if err := fsutil.AtomicWrite(m.path, data, 0644); err != nil {
		return nil, fmt.Errorf("take over lock: %w", err)
	}
	return rec, nil
}

// Release frees the lock if holderNonce still owns it.
func (m *Manager) Release(holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // already released
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Status returns the current lock state.
func (m *Manager) Status() (State, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StateFree, nil, nil
		}
		return StateFree, nil, fmt.Errorf("read lock: %w", err)
	}
	return m.state(rec), rec, nil
}

func (m *Manager) state(rec *model.LockRecord) State {
	if rec.Hostname == m.hostname && !m.alive(rec.PID) {
		return StateStale
	}
	return StateHeld
}

func (m *Manager) readLock() (*model.LockRecord, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}

func writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return file.Sync()
}
