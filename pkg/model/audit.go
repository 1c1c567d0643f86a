package model

import "time"

// AuditEventType identifies the type of journaled event.
type AuditEventType string

const (
	EventTypeTrack          AuditEventType = "track"
	EventTypeVersion        AuditEventType = "version"
	EventTypeStateDiscarded AuditEventType = "state_discarded"
)

// AuditRecord is a single line in the journal (JSONL format).
type AuditRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	File        string         `json:"file,omitempty"`
	Version     int            `json:"version,omitempty"`
	Fingerprint HashValue      `json:"fingerprint,omitempty"`
	Artifact    string         `json:"artifact,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    HashValue      `json:"prev_hash"`
	RecordHash  HashValue      `json:"record_hash"`
}
