// Package registry implements the change-detection and versioning state
// machine for the files of one watched directory.
//
// Each tracked file moves Untracked -> Tracked -> Tracked (updated)*.
// The first sighting is a baseline at version 1 and produces no backup.
// Later content changes, confirmed by fingerprint and not by timestamp
// alone, advance the version by exactly one and produce one backup
// artifact. Entries are never removed, even when their file disappears.
package registry

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/autobackup-watch/autobackup/internal/backup"
	"github.com/autobackup-watch/autobackup/internal/hasher"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// TrackOutcome is the result of TrackIfNew.
type TrackOutcome int

const (
	Added TrackOutcome = iota + 1
	AlreadyTracked
)

func (o TrackOutcome) String() string {
	switch o {
	case Added:
		return "added"
	case AlreadyTracked:
		return "already_tracked"
	}
	return "unknown"
}

// Outcome is the result of Reconcile.
type Outcome int

const (
	Unchanged Outcome = iota + 1
	Changed
	// Inaccessible means the file could not be stat'ed or read. The entry
	// is left exactly as it was.
	Inaccessible
	// BackupFailed means a content change was detected but the artifact
	// could not be written. The entry is left as it was so the change is
	// picked up again on the next cycle.
	BackupFailed
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Inaccessible:
		return "inaccessible"
	case BackupFailed:
		return "backup_failed"
	}
	return "unknown"
}

// Result describes one reconciliation.
type Result struct {
	Outcome Outcome
	// Version is the entry's version after the call.
	Version int
	// Artifact is set when Outcome is Changed.
	Artifact *model.BackupArtifact
}

// BackupWriter produces backup artifacts for confirmed changes.
type BackupWriter interface {
	Write(sourcePath, baseName, ext string, version int, ts time.Time) (*model.BackupArtifact, error)
}

// Options configures a Registry.
type Options struct {
	// Root is the watched directory; tracked names are relative to it.
	Root string
	// Hasher defaults to SHA-256.
	Hasher hasher.Fingerprinter
	// Backups defaults to a writer for Root/.autobackup.
	Backups BackupWriter
	// Now defaults to time.Now and stamps artifact names.
	Now func() time.Time
}

// Registry owns the tracked files of one directory. All operations are
// serialized by a single mutex, so at most one reconciliation of any
// entry is in flight.
type Registry struct {
	mu      sync.Mutex
	root    string
	hasher  hasher.Fingerprinter
	backups BackupWriter
	now     func() time.Time
	files   map[string]*model.TrackedFile
	gen     uint64
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	if opts.Hasher == nil {
		opts.Hasher = hasher.SHA256{}
	}
	if opts.Backups == nil {
		opts.Backups = backup.NewWriter(filepath.Join(opts.Root, model.BackupDirName))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		root:    opts.Root,
		hasher:  opts.Hasher,
		backups: opts.Backups,
		now:     opts.Now,
		files:   make(map[string]*model.TrackedFile),
	}
}

// Root returns the watched directory.
func (r *Registry) Root() string {
	return r.root
}

// TrackIfNew starts tracking name at version 1 if it is not tracked yet.
// info may be nil, in which case the file is stat'ed. No backup is made
// for the first sighting. A file that cannot be read is not tracked and
// ErrUnreadable is returned so the caller can retry later.
func (r *Registry) TrackIfNew(name string, info fs.FileInfo) (TrackOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[name]; ok {
		return AlreadyTracked, nil
	}
	if err := pathutil.ValidateTrackedName(name); err != nil {
		return 0, err
	}

	path := r.path(name)
	info, err := r.statIfNil(path, info)
	if err != nil {
		return 0, err
	}

	// mtime is taken before hashing: if the file changes while being read,
	// its mtime moves past the stored value and the next reconcile rehashes.
	fp, err := r.hasher.FingerprintFile(path)
	if err != nil {
		return 0, err
	}

	r.files[name] = &model.TrackedFile{
		Name:        name,
		Fingerprint: fp,
		ModTime:     info.ModTime(),
		Version:     1,
	}
	r.gen++
	return Added, nil
}

// Reconcile compares the current state of a tracked file with its entry.
//
// A modification time that has not advanced short-circuits to Unchanged
// without hashing; content rewritten with a backdated mtime is therefore
// not detected. An advanced mtime with identical content records the new
// mtime only. Different content writes an artifact for version+1 and then
// updates fingerprint, mtime and version together.
func (r *Registry) Reconcile(name string, info fs.FileInfo) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tf, ok := r.files[name]
	if !ok {
		return Result{}, errclass.ErrNotTracked.WithMessage(name)
	}
	unchanged := Result{Outcome: Unchanged, Version: tf.Version}
	inaccessible := Result{Outcome: Inaccessible, Version: tf.Version}

	path := r.path(name)
	info, err := r.statIfNil(path, info)
	if err != nil {
		return inaccessible, err
	}
	mtime := info.ModTime()
	if !mtime.After(tf.ModTime) {
		return unchanged, nil
	}

	fp, err := r.hasher.FingerprintFile(path)
	if err != nil {
		return inaccessible, err
	}
	if fp == tf.Fingerprint {
		tf.ModTime = mtime
		r.gen++
		return unchanged, nil
	}

	next := tf.Version + 1
	base, ext := pathutil.SplitName(name)
	art, err := r.backups.Write(path, base, ext, next, r.now())
	if err != nil {
		return Result{Outcome: BackupFailed, Version: tf.Version}, err
	}

	// The artifact's own fingerprint is authoritative: it is exactly the
	// content stored for this version, even if the file moved on after
	// it was hashed above.
	switch art.Fingerprint {
	case "":
		art.Fingerprint = fp
	case tf.Fingerprint:
		// Reverted between hashing and copying; nothing new to keep.
		if err := os.Remove(art.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Result{Outcome: BackupFailed, Version: tf.Version},
				errclass.ErrWriteFailed.WithMessagef("remove redundant backup %s", art.Path).Wrap(err)
		}
		tf.ModTime = mtime
		r.gen++
		return unchanged, nil
	}

	*tf = model.TrackedFile{
		Name:        name,
		Fingerprint: art.Fingerprint,
		ModTime:     mtime,
		Version:     next,
	}
	r.gen++
	return Result{Outcome: Changed, Version: next, Artifact: art}, nil
}

// Snapshot returns a copy of every entry ordered by name.
func (r *Registry) Snapshot() []model.TrackedFile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.TrackedFile, 0, len(r.files))
	for _, tf := range r.files {
		out = append(out, *tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore replaces the registry contents with files. Nothing is replaced
// if any entry is invalid: duplicate or empty names, versions below 1 or
// empty fingerprints yield ErrStateCorrupt.
func (r *Registry) Restore(files []model.TrackedFile) error {
	next := make(map[string]*model.TrackedFile, len(files))
	for i, f := range files {
		switch {
		case f.Name == "":
			return errclass.ErrStateCorrupt.WithMessagef("record %d: empty name", i+1)
		case f.Version < 1:
			return errclass.ErrStateCorrupt.WithMessagef("record %d (%s): non-positive version %d", i+1, f.Name, f.Version)
		case f.Fingerprint == "":
			return errclass.ErrStateCorrupt.WithMessagef("record %d (%s): empty fingerprint", i+1, f.Name)
		}
		if _, dup := next[f.Name]; dup {
			return errclass.ErrStateCorrupt.WithMessagef("record %d: duplicate name %q", i+1, f.Name)
		}
		tf := f
		next[f.Name] = &tf
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = next
	r.gen++
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (model.TrackedFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tf, ok := r.files[name]
	if !ok {
		return model.TrackedFile{}, false
	}
	return *tf, true
}

// Names returns the tracked names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tracked files.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Generation increases on every mutation. Callers compare generations to
// decide whether the registry needs persisting.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.root, name)
}

func (r *Registry) statIfNil(path string, info fs.FileInfo) (fs.FileInfo, error) {
	if info != nil {
		return info, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errclass.ErrUnreadable.WithMessagef("%s: file is gone", path).Wrap(err)
		}
		return nil, errclass.ErrUnreadable.WithMessage(path).Wrap(err)
	}
	return info, nil
}
