//go:build windows

package lock

// processAlive cannot cheaply probe a pid on Windows; locks are treated
// as live and must be cleared with --force.
func processAlive(pid int) bool { return pid > 0 }
