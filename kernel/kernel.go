// Package kernel defines the capability contract between the qgemm
// dispatcher and the compute kernel families, and the registry that maps
// weight-blob core types onto concrete kernels.
//
// The dispatcher is written only against the Kernel interface; adding a
// kernel family is a single Register call against the tags it serves.
package kernel

import (
	"fmt"
	"sort"

	"github.com/lowbit-labs/qgemm/blob"
)

// Status is the result code returned by a kernel invocation, mirroring the
// kernel-library ABI.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidArgument
	StatusNotSupported
	StatusRuntimeError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidArgument:
		return "InvalidArgument"
	case StatusNotSupported:
		return "NotSupported"
	case StatusRuntimeError:
		return "RuntimeError"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Request bundles one matmul invocation: Output = Activation(M×K) × W(K×N),
// where W is the quantized weight matrix behind Handle. All slices are
// borrowed for the duration of the call and must not alias each other.
//
// LDA and LDO are leading dimensions (row strides, in elements) of the
// activation and output buffers; each must be at least the corresponding row
// length. Alpha and Beta blend the result into Output for kernels that
// support accumulation: Output = Alpha*result + Beta*Output. The dispatcher
// passes the identity values (1, 0), meaning overwrite.
//
// Threads is the worker count the kernel may fan out across; values below 1
// are treated as 1.
type Request struct {
	Activation []float32
	Handle     *blob.Handle
	Output     []float32
	M, N, K    int
	LDA, LDO   int
	Alpha      float32
	Beta       float32
	Threads    int
}

// Validate checks dimensions, strides and buffer lengths. Kernels call it
// before touching any buffer.
func (r *Request) Validate() error {
	if r.M <= 0 || r.N <= 0 || r.K <= 0 {
		return fmt.Errorf("invalid dimensions: m=%d n=%d k=%d", r.M, r.N, r.K)
	}
	if r.LDA < r.K {
		return fmt.Errorf("lda %d < k %d", r.LDA, r.K)
	}
	if r.LDO < r.N {
		return fmt.Errorf("ldo %d < n %d", r.LDO, r.N)
	}
	if need := (r.M-1)*r.LDA + r.K; len(r.Activation) < need {
		return fmt.Errorf("activation buffer too small: %d < %d", len(r.Activation), need)
	}
	if need := (r.M-1)*r.LDO + r.N; len(r.Output) < need {
		return fmt.Errorf("output buffer too small: %d < %d", len(r.Output), need)
	}
	if r.Handle == nil {
		return fmt.Errorf("nil weight handle")
	}
	if r.Handle.Closed() {
		return fmt.Errorf("weight handle is closed")
	}
	if r.Handle.N() != r.N || r.Handle.K() != r.K {
		return fmt.Errorf("weight shape %dx%d does not match request k=%d n=%d",
			r.Handle.K(), r.Handle.N(), r.K, r.N)
	}
	return nil
}

// Kernel is one compute family. Implementations must be safe for concurrent
// Compute calls with non-aliased requests.
type Kernel interface {
	// Name identifies the family in logs and error messages.
	Name() string

	// CoreTypes lists the capability tags this family serves.
	CoreTypes() []blob.CoreType

	// Available reports whether the host CPU has the instruction-set
	// support the family was designed for. Compute still works without
	// it; Available lets callers pick blob formats to match the host.
	Available() bool

	// Compute runs the matmul and reports a status code. It never
	// panics on malformed requests; Validate failures map to
	// StatusInvalidArgument.
	Compute(req *Request) Status
}

// Registry maps core types to kernels.
type Registry struct {
	kernels map[blob.CoreType]Kernel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[blob.CoreType]Kernel)}
}

// Register binds k to every core type it serves. Registering a nil kernel or
// a tag that is already bound is an error.
func (r *Registry) Register(k Kernel) error {
	if k == nil {
		return fmt.Errorf("cannot register nil kernel")
	}
	tags := k.CoreTypes()
	if len(tags) == 0 {
		return fmt.Errorf("kernel %s serves no core types", k.Name())
	}
	for _, t := range tags {
		if prev, exists := r.kernels[t]; exists {
			return fmt.Errorf("core type %v already served by %s", t, prev.Name())
		}
	}
	for _, t := range tags {
		r.kernels[t] = k
	}
	return nil
}

// Lookup returns the kernel bound to t.
func (r *Registry) Lookup(t blob.CoreType) (Kernel, bool) {
	k, ok := r.kernels[t]
	return k, ok
}

// List returns the registered kernels, deduplicated and sorted by name.
func (r *Registry) List() []Kernel {
	seen := make(map[string]bool)
	var out []Kernel
	for _, k := range r.kernels {
		if !seen[k.Name()] {
			seen[k.Name()] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
