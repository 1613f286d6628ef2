package qgemm

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
)

// Device models the compute device abstraction the kernels fan out across:
// for qgemm that is the host CPU and a desired worker-thread count. The
// count is stored atomically; concurrent SetThreads calls are safe with
// last-writer-wins semantics.
type Device struct {
	threads atomic.Int32
}

// NewDevice returns a device sized to the host's logical core count.
func NewDevice() *Device {
	d := &Device{}
	d.threads.Store(int32(logicalCores()))
	return d
}

// SetThreads sets the desired worker-thread count and returns the value
// actually in effect after clamping to the logical core count. Non-positive
// counts are an error.
func (d *Device) SetThreads(n int) (int, error) {
	if n <= 0 {
		return 0, NewInvalidArgError("SetThreads", fmt.Sprintf("thread count must be positive, got %d", n))
	}
	if maxThreads := logicalCores(); n > maxThreads {
		n = maxThreads
	}
	d.threads.Store(int32(n))
	return n, nil
}

// Threads returns the current worker-thread count.
func (d *Device) Threads() int {
	return int(d.threads.Load())
}

// logicalCores returns the host's logical core count, falling back to
// runtime.NumCPU where cpuid cannot read it (VMs, unusual topologies).
func logicalCores() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// PhysicalCores returns the host's physical core count, 0 if unknown.
func PhysicalCores() int {
	return cpuid.CPU.PhysicalCores
}
