package compute

import "runtime"

// Capabilities is the read-only record of detected execution backends and
// their limits, established once at startup and immutable afterwards.
type Capabilities struct {
	Accelerator     bool `json:"accelerator"`
	NativeModule    bool `json:"native_module"`
	SharedMemory    bool `json:"shared_memory"`
	MaxConcurrent   int  `json:"max_concurrent"`
	MaxComputeUnits int  `json:"max_compute_units"`
	MaxTextureSize  int  `json:"max_texture_size"`
}

// ProbeOptions lets the host declare backends that cannot be detected
// from inside the process (GPU device, loaded native module).
type ProbeOptions struct {
	Accelerator  bool
	NativeModule bool
	SharedMemory bool
	// MaxConcurrent overrides the CPU-derived in-flight limit when > 0.
	MaxConcurrent int
}

// Detect probes the process environment and folds in the host-declared
// options. The in-flight concurrency limit defaults to the CPU count.
func Detect(opts ProbeOptions) Capabilities {
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	caps := Capabilities{
		Accelerator:   opts.Accelerator,
		NativeModule:  opts.NativeModule,
		SharedMemory:  opts.SharedMemory,
		MaxConcurrent: limit,
	}
	if caps.Accelerator {
		caps.MaxComputeUnits = 64
		caps.MaxTextureSize = 8192
	}
	return caps
}
