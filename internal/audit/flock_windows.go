//go:build windows

package audit

import (
	"os"

	"golang.org/x/sys/windows"
)

// wholeFile covers every byte the journal can ever reach.
const wholeFile = ^uint32(0)

// lockFile blocks until an exclusive byte-range lock on the journal is held,
// so another watcher process cannot interleave its records.
func lockFile(f *os.File) error {
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, wholeFile, wholeFile, new(windows.Overlapped))
}

func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, wholeFile, wholeFile, new(windows.Overlapped))
}
