//go:build !linux

package sandbox

// applyLimits is a no-op off Linux; the timeout and output cap still hold.
func applyLimits(pid int, l Limits) error { return nil }
