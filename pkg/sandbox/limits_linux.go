//go:build linux

package sandbox

import "golang.org/x/sys/unix"

// applyLimits sets rlimits on the running child. Failures are reported but
// callers treat them as best-effort: the timeout and output cap still hold.
func applyLimits(pid int, l Limits) error {
	var firstErr error
	set := func(resource int, value uint64) {
		if value == 0 {
			return
		}
		rl := &unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, rl, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	set(unix.RLIMIT_CPU, l.CPUSeconds)
	set(unix.RLIMIT_AS, l.MemoryBytes)
	set(unix.RLIMIT_FSIZE, l.FileSizeBytes)
	set(unix.RLIMIT_NOFILE, l.MaxOpenFDs)
	return firstErr
}
