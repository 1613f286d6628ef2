package qgemm

import (
	"github.com/rs/zerolog"

	"github.com/lowbit-labs/qgemm/kernel"
	"github.com/lowbit-labs/qgemm/kernel/avx512f"
	"github.com/lowbit-labs/qgemm/kernel/vnni"
)

// Session owns the state a dispatch call depends on: the kernel registry,
// the device thread count, and an optional logger. Sessions are safe for
// concurrent Matmul calls with non-aliased buffers; the thread count is
// atomic with last-writer-wins semantics.
type Session struct {
	device   *Device
	registry *kernel.Registry
	log      zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry replaces the default kernel registry.
func WithRegistry(r *kernel.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithLogger attaches a logger for per-dispatch debug events. The default
// is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithDevice replaces the session's device. Sessions sharing a device share
// its thread count.
func WithDevice(d *Device) Option {
	return func(s *Session) { s.device = d }
}

// NewSession returns a session with both kernel families registered and the
// thread count sized to the host.
func NewSession(opts ...Option) *Session {
	s := &Session{
		device:   NewDevice(),
		registry: DefaultRegistry(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Device returns the session's device.
func (s *Session) Device() *Device {
	return s.device
}

// Registry returns the session's kernel registry.
func (s *Session) Registry() *kernel.Registry {
	return s.registry
}

// SetThreads sets the session's worker-thread count, returning the
// effective value after clamping.
func (s *Session) SetThreads(n int) (int, error) {
	return s.device.SetThreads(n)
}

// DefaultRegistry returns a registry with both kernel families bound to
// their core types.
func DefaultRegistry() *kernel.Registry {
	r := kernel.NewRegistry()
	// Register cannot fail here: the families serve disjoint, non-empty
	// tag sets.
	_ = r.Register(vnni.New())
	_ = r.Register(avx512f.New())
	return r
}

// std is the shared default session behind the package-level entry points.
var std = NewSession()

// DefaultSession returns the shared session used by RunMatmul and
// SetThreads.
func DefaultSession() *Session {
	return std
}

// RunMatmul dispatches a quantized matmul on the default session. See
// Session.Matmul.
func RunMatmul(activation []float32, weightBlob []byte, output []float32, m, n, k, lda, ldo int) error {
	return std.Matmul(activation, weightBlob, output, m, n, k, lda, ldo)
}

// SetThreads sets the default session's worker-thread count, returning the
// effective value after clamping.
func SetThreads(n int) (int, error) {
	return std.SetThreads(n)
}

// Threads returns the default session's worker-thread count.
func Threads() int {
	return std.device.Threads()
}
