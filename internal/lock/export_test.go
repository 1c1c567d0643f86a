package lock

// SetAliveFunc replaces the process liveness probe.
func (m *Manager) SetAliveFunc(f func(pid int) bool) { m.alive = f }
