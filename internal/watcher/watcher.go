// Package watcher runs the poll loop over one watched directory: it tracks
// new files, reconciles tracked ones, persists state and shuts down cleanly.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/autobackup-watch/autobackup/internal/audit"
	"github.com/autobackup-watch/autobackup/internal/lock"
	"github.com/autobackup-watch/autobackup/internal/registry"
	"github.com/autobackup-watch/autobackup/internal/scan"
	"github.com/autobackup-watch/autobackup/internal/statestore"
	"github.com/autobackup-watch/autobackup/pkg/color"
	"github.com/autobackup-watch/autobackup/pkg/config"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/logging"
	"github.com/autobackup-watch/autobackup/pkg/metrics"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
	"github.com/autobackup-watch/autobackup/pkg/webhook"
)

// Options configures a Driver.
type Options struct {
	Dir      string
	Interval time.Duration
	// OnCorrupt is config.CorruptAbort (default) or config.CorruptDiscard.
	OnCorrupt string
	// Notify adds filesystem event nudges on top of polling.
	Notify bool
	// Force takes the directory lock even if another watcher holds it.
	Force    bool
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Webhooks *webhook.Client
	// Out receives human-readable progress and status. Nil discards it.
	Out io.Writer
	Now func() time.Time
}

// Driver owns the registry of one directory for the lifetime of a watch.
type Driver struct {
	opts      Options
	dir       string
	backupDir string
	sessionID string

	reg     *registry.Registry
	store   *statestore.Store
	journal *audit.FileAppender
	locks   *lock.Manager
	log     *logging.Logger
	out     io.Writer

	lockRec  *model.LockRecord
	savedGen uint64
	// problems remembers files already reported so a vanished or unreadable
	// file warns once instead of every cycle.
	problems map[string]string
}

// CycleStats summarises one poll cycle.
type CycleStats struct {
	Tracked int
	Changed int
	Errors  int
}

// New validates the directory and wires the collaborators. It touches
// nothing on disk.
func New(opts Options) (*Driver, error) {
	dir, err := pathutil.ResolveWatchDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultPollInterval * time.Second
	}
	if opts.OnCorrupt == "" {
		opts.OnCorrupt = config.CorruptAbort
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	backupDir := filepath.Join(dir, model.BackupDirName)
	sessionID := uuid.NewString()
	return &Driver{
		opts:      opts,
		dir:       dir,
		backupDir: backupDir,
		sessionID: sessionID,
		reg:       registry.New(registry.Options{Root: dir, Now: opts.Now}),
		store:     statestore.New(filepath.Join(dir, model.StateFileName)),
		journal:   audit.NewFileAppender(filepath.Join(backupDir, model.JournalFile)),
		locks:     lock.NewManager(backupDir),
		log:       opts.Logger.WithFields(map[string]any{"dir": dir, "session": sessionID}),
		out:       opts.Out,
		problems:  make(map[string]string),
	}, nil
}

// Dir returns the resolved watched directory.
func (d *Driver) Dir() string { return d.dir }

// Registry exposes the driver's registry.
func (d *Driver) Registry() *registry.Registry { return d.reg }

// Run watches until ctx is cancelled. The file being reconciled when ctx
// ends is finished, then state is saved and the lock released.
func (d *Driver) Run(ctx context.Context) (err error) {
	if err := d.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(d.out, "Watching directory: %s\n", d.dir)
	fmt.Fprintf(d.out, "Backup location: %s\n", d.backupDir)
	fmt.Fprintf(d.out, "Poll interval: %s\n", d.opts.Interval)
	fmt.Fprintf(d.out, "Press Ctrl+C to stop\n\n")

	d.Cycle(ctx)
	WriteStatus(d.out, d.dir, d.reg.Snapshot())

	var nudges <-chan struct{}
	if d.opts.Notify {
		n, stop, nerr := startNotifier(ctx, d.dir, d.log)
		if nerr != nil {
			d.log.WarnErr("filesystem notifications unavailable, polling only", nerr)
		} else {
			defer stop()
			nudges = n
		}
	}

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	d.log.Info("monitoring for changes", map[string]any{"interval": d.opts.Interval.String(), "notify": nudges != nil})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-nudges:
		}
		d.Cycle(ctx)
	}
}

// Open takes the directory lock and loads persisted state.
func (d *Driver) Open() error {
	rec, err := d.locks.Acquire(d.sessionID, d.opts.Force)
	if err != nil {
		return err
	}
	d.lockRec = rec
	if err := d.loadState(); err != nil {
		d.releaseLock()
		return err
	}
	d.log.Info("watch started", map[string]any{"tracked": d.reg.Len(), "pid": rec.PID})
	return nil
}

// Close persists pending state, releases the lock and drains webhooks.
func (d *Driver) Close() error {
	var errs []error
	if err := d.saveIfDirty(); err != nil {
		errs = append(errs, err)
	}
	d.releaseLock()
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.opts.Webhooks.Close(closeCtx); err != nil {
		d.log.WarnErr("webhook drain incomplete", err)
	}
	d.log.Info("watch stopped", map[string]any{"tracked": d.reg.Len()})
	return errors.Join(errs...)
}

func (d *Driver) releaseLock() {
	if d.lockRec == nil {
		return
	}
	if err := d.locks.Release(d.lockRec.HolderNonce); err != nil {
		d.log.WarnErr("release lock", err)
	}
	d.lockRec = nil
}

func (d *Driver) loadState() error {
	files, err := d.store.Load()
	if err == nil {
		err = d.reg.Restore(files)
	}
	switch {
	case err == nil:
		d.log.Info("loaded state", map[string]any{"tracked": len(files)})
		fmt.Fprintf(d.out, "Loaded state: tracking %d files\n", len(files))
	case errors.Is(err, errclass.ErrStateNotFound):
		d.log.Info("no saved state, starting empty")
	case errors.Is(err, errclass.ErrStateCorrupt):
		d.opts.Metrics.RecordFileError(metrics.KindState)
		if d.opts.OnCorrupt != config.CorruptDiscard {
			return fmt.Errorf("%w (set on_corrupt_state: discard to start over)", err)
		}
		moved, qerr := d.store.Quarantine(d.opts.Now())
		if qerr != nil {
			return qerr
		}
		d.log.WarnErr("corrupt state discarded", err, map[string]any{"quarantined": moved})
		d.appendJournal(model.AuditRecord{
			EventType: model.EventTypeStateDiscarded,
			Details:   map[string]any{"quarantined": filepath.Base(moved), "reason": err.Error()},
		})
		d.opts.Webhooks.StateDiscarded(d.dir, moved)
	default:
		return err
	}
	d.savedGen = d.reg.Generation()
	return nil
}

// Cycle performs one poll: enumerate, track new entries, reconcile every
// tracked entry and persist. It stops between files once ctx is done.
func (d *Driver) Cycle(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	seen := make(map[string]fs.FileInfo)
	res, err := scan.Enumerate(d.dir)
	if err != nil {
		stats.Errors++
		d.log.WarnErr("enumerate directory", err)
		res = &scan.Result{}
	}
	for _, sk := range res.Skipped {
		d.reportProblem(sk.Name, sk.Reason)
		stats.Errors++
	}

	for _, e := range res.Entries {
		if ctx.Err() != nil {
			break
		}
		seen[e.Name] = e.Info
		outcome, err := d.reg.TrackIfNew(e.Name, e.Info)
		if err != nil {
			d.reportProblem(e.Name, err)
			stats.Errors++
			continue
		}
		if outcome == registry.Added {
			stats.Tracked++
			d.onTracked(e.Name)
		}
	}

	for _, name := range d.reg.Names() {
		if ctx.Err() != nil {
			break
		}
		result, err := d.reg.Reconcile(name, seen[name])
		switch result.Outcome {
		case registry.Changed:
			stats.Changed++
			d.clearProblem(name)
			d.onVersioned(name, result.Artifact)
		case registry.Unchanged:
			d.clearProblem(name)
		default:
			d.reportProblem(name, err)
			stats.Errors++
		}
	}

	if err := d.saveIfDirty(); err != nil {
		stats.Errors++
	}
	d.opts.Metrics.SetTracked(d.reg.Len())
	d.opts.Metrics.RecordCycle(time.Since(start))
	d.log.Debug("cycle complete", map[string]any{
		"tracked": stats.Tracked, "changed": stats.Changed, "errors": stats.Errors,
		"duration": time.Since(start).String(),
	})
	return stats
}

func (d *Driver) onTracked(name string) {
	tf, _ := d.reg.Get(name)
	d.log.Info("now tracking", map[string]any{"file": name, "fingerprint": string(tf.Fingerprint)})
	fmt.Fprintf(d.out, "Now tracking: %s\n", color.FileName(name))
	d.appendJournal(model.AuditRecord{
		EventType:   model.EventTypeTrack,
		File:        name,
		Version:     tf.Version,
		Fingerprint: tf.Fingerprint,
	})
	d.opts.Webhooks.FileTracked(d.dir, name, string(tf.Fingerprint))
}

func (d *Driver) onVersioned(name string, art *model.BackupArtifact) {
	// Saved before the change is announced anywhere else.
	if err := d.save(); err != nil {
		d.log.ErrorErr("save state after change", err, map[string]any{"file": name})
	}
	d.opts.Metrics.RecordVersion(art.Size)
	d.log.Info("backed up", map[string]any{"file": name, "version": art.Version, "artifact": art.Name, "size": art.Size})
	fmt.Fprintf(d.out, "%s Backed up: %s -> %s (hash changed)\n", color.Success("✓"), color.FileName(name), color.Version(art.Version))
	d.appendJournal(model.AuditRecord{
		EventType:   model.EventTypeVersion,
		File:        name,
		Version:     art.Version,
		Fingerprint: art.Fingerprint,
		Artifact:    art.Name,
		Details:     map[string]any{"size": art.Size},
	})
	d.opts.Webhooks.FileVersioned(d.dir, name, art.Version, string(art.Fingerprint), art.Name, art.Size)
}

func (d *Driver) reportProblem(name string, err error) {
	if err == nil {
		return
	}
	kind := metrics.KindUnreadable
	switch {
	case errors.Is(err, errclass.ErrWriteFailed):
		kind = metrics.KindWrite
	case errors.Is(err, errclass.ErrNameInvalid):
		kind = metrics.KindName
	}
	d.opts.Metrics.RecordFileError(kind)

	msg := err.Error()
	fields := map[string]any{"file": name, "kind": kind}
	if d.problems[name] == msg {
		d.log.Debug("file still failing", fields)
		return
	}
	d.problems[name] = msg
	if kind == metrics.KindWrite {
		d.log.ErrorErr("backup failed, will retry next cycle", err, fields)
		fmt.Fprintf(d.out, "%s Failed to create backup for %s\n", color.Error("[ERROR]"), name)
		return
	}
	d.log.WarnErr("file skipped", err, fields)
}

func (d *Driver) clearProblem(name string) {
	if _, ok := d.problems[name]; ok {
		delete(d.problems, name)
		d.log.Info("file readable again", map[string]any{"file": name})
	}
}

func (d *Driver) appendJournal(rec model.AuditRecord) {
	rec.Timestamp = d.opts.Now()
	if err := d.journal.Append(rec); err != nil {
		d.log.WarnErr("journal append failed", err, map[string]any{"event": string(rec.EventType)})
	}
}

func (d *Driver) saveIfDirty() error {
	if d.reg.Generation() == d.savedGen {
		return nil
	}
	if err := d.save(); err != nil {
		d.log.ErrorErr("save state", err)
		return err
	}
	return nil
}

func (d *Driver) save() error {
	gen := d.reg.Generation()
	if err := d.store.Save(d.reg.Snapshot()); err != nil {
		d.opts.Metrics.RecordFileError(metrics.KindState)
		return err
	}
	d.savedGen = gen
	return nil
}
