//go:build !amd64

package avx512f

// AVX-512 is x86-64 only.

var hasAVX512F = false

func detect() {}

// HasAVX512F returns true if AVX-512 Foundation is available.
func HasAVX512F() bool { return hasAVX512F }

// SetSupport overrides detection. For testing.
func SetSupport(v bool) { hasAVX512F = v }
