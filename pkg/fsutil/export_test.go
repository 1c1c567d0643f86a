package fsutil

// SetRemoveFile swaps the remove used after a hard-link publish and returns
// a func restoring the original.
func SetRemoveFile(fn func(string) error) func() {
	prev := removeFile
	removeFile = fn
	return func() { removeFile = prev }
}
