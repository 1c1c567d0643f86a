// Package verify checks a watched directory offline: the state file, the
// backup artifacts it implies and the event journal.
package verify

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/autobackup-watch/autobackup/internal/audit"
	"github.com/autobackup-watch/autobackup/internal/backup"
	"github.com/autobackup-watch/autobackup/internal/hasher"
	"github.com/autobackup-watch/autobackup/internal/registry"
	"github.com/autobackup-watch/autobackup/internal/statestore"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// Severity levels of a finding.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Finding is one problem discovered during verification.
type Finding struct {
	Check    string `json:"check"` // state, artifact, journal
	File     string `json:"file,omitempty"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity"`
	Error    string `json:"error"`
}

// Report is the outcome of Verify.
type Report struct {
	Dir              string    `json:"dir"`
	StateFound       bool      `json:"state_found"`
	TrackedFiles     int       `json:"tracked_files"`
	ArtifactsChecked int       `json:"artifacts_checked"`
	JournalRecords   int       `json:"journal_records"`
	Findings         []Finding `json:"findings,omitempty"`
}

// OK reports whether nothing was found.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Verifier performs offline verification of a watched directory.
type Verifier struct {
	dir    string
	hasher hasher.Fingerprinter
}

// NewVerifier creates a new verifier.
func NewVerifier(dir string) *Verifier {
	return &Verifier{dir: dir, hasher: hasher.SHA256{}}
}

// Verify runs every check. With checkContent each current-version artifact
// is rehashed and compared with the stored fingerprint. The error is
// non-nil only when verification itself could not run.
func (v *Verifier) Verify(checkContent bool) (*Report, error) {
	report := &Report{Dir: v.dir}

	files, err := v.loadState(report)
	if err != nil {
		return nil, err
	}
	report.TrackedFiles = len(files)

	if err := v.checkArtifacts(report, files, checkContent); err != nil {
		return nil, err
	}

	journal := audit.NewFileAppender(filepath.Join(v.dir, model.BackupDirName, model.JournalFile))
	n, err := journal.Verify()
	report.JournalRecords = n
	if err != nil {
		report.add(Finding{Check: "journal", Severity: SeverityCritical}, err)
	}

	return report, nil
}

func (v *Verifier) loadState(report *Report) ([]model.TrackedFile, error) {
	store := statestore.New(filepath.Join(v.dir, model.StateFileName))
	files, err := store.Load()
	switch {
	case errors.Is(err, errclass.ErrStateNotFound):
		return nil, nil
	case errors.Is(err, errclass.ErrStateCorrupt):
		report.StateFound = true
		report.add(Finding{Check: "state", Severity: SeverityCritical}, err)
		return nil, nil
	case err != nil:
		return nil, err
	}
	report.StateFound = true

	// Restore applies the registry's own invariants (unique names,
	// versions >= 1) on top of the format checks.
	if err := registry.New(registry.Options{Root: v.dir}).Restore(files); err != nil {
		report.add(Finding{Check: "state", Severity: SeverityCritical}, err)
		return nil, nil
	}
	return files, nil
}

func (v *Verifier) checkArtifacts(report *Report, files []model.TrackedFile, checkContent bool) error {
	listed, err := backup.List(filepath.Join(v.dir, model.BackupDirName))
	if err != nil {
		return err
	}
	type key struct {
		base, ext string
		version   int
	}
	byVersion := make(map[key][]backup.Listed)
	for _, l := range listed {
		k := key{l.Base, l.Ext, l.Version}
		byVersion[k] = append(byVersion[k], l)
	}

	for _, tf := range files {
		if tf.Version <= 1 {
			continue
		}
		base, ext := pathutil.SplitName(tf.Name)
		candidates := byVersion[key{base, ext, tf.Version}]
		if len(candidates) == 0 {
			report.add(Finding{Check: "artifact", File: tf.Name, Severity: SeverityError},
				errclass.ErrArtifactMissing.WithMessagef("no backup for %s v%d", tf.Name, tf.Version))
			continue
		}
		report.ArtifactsChecked++
		if !checkContent {
			continue
		}
		if !v.anyMatches(candidates, tf.Fingerprint) {
			report.add(Finding{Check: "artifact", File: tf.Name, Severity: SeverityCritical},
				errclass.ErrArtifactMismatch.WithMessagef("no backup of %s v%d has fingerprint %s", tf.Name, tf.Version, tf.Fingerprint))
		}
	}
	return nil
}

// anyMatches accepts a version if any of its artifacts holds the stored
// content; more than one exists only after a state discard.
func (v *Verifier) anyMatches(candidates []backup.Listed, want model.HashValue) bool {
	for _, c := range candidates {
		fp, err := v.hasher.FingerprintFile(c.Path)
		if err == nil && fp == want {
			return true
		}
	}
	return false
}

func (r *Report) add(f Finding, err error) {
	var ec *errclass.Error
	if errors.As(err, &ec) {
		f.Code = ec.Code
	}
	f.Error = err.Error()
	r.Findings = append(r.Findings, f)
}

// String summarises the report in one line.
func (r *Report) String() string {
	return fmt.Sprintf("%d tracked, %d artifacts checked, %d journal records, %d findings",
		r.TrackedFiles, r.ArtifactsChecked, r.JournalRecords, len(r.Findings))
}
