// Package model holds the data types shared between the registry, its
// persistence and the reporting commands.
package model

import "time"

// HashValue is a SHA-256 content digest stored as lowercase hex.
type HashValue string

// TrackedFile is the registry's record for one file in the watched directory.
type TrackedFile struct {
	Name        string    `json:"name"`
	Fingerprint HashValue `json:"fingerprint"`
	ModTime     time.Time `json:"last_observed_mtime"`
	Version     int       `json:"version"`
}

// BackupArtifact is an immutable copy of a tracked file at one version.
type BackupArtifact struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Fingerprint HashValue `json:"fingerprint"`
	Size        int64     `json:"size"`
}

// Reserved locations inside a watched directory.
const (
	BackupDirName = ".autobackup"
	StateFileName = ".autobackup_state"
	ConfigFile    = "config.yaml"
	JournalFile   = "journal.jsonl"
	LockFile      = "watch.lock"
)
