package model

import "time"

// LockRecord is the content of a watched directory's lock file.
type LockRecord struct {
	HolderNonce string    `json:"holder_nonce"`
	SessionID   string    `json:"session_id"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquired_at"`
}
