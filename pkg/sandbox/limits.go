package sandbox

// Limits are best-effort per-process resource caps. Zero fields are left at
// the inherited defaults.
type Limits struct {
	CPUSeconds    uint64
	MemoryBytes   uint64
	FileSizeBytes uint64
	MaxOpenFDs    uint64
}

// DefaultLimits is applied to every sandboxed process unless overridden.
var DefaultLimits = Limits{
	CPUSeconds:    60,
	MemoryBytes:   1 << 30,
	FileSizeBytes: 64 << 20,
	MaxOpenFDs:    256,
}
