//go:build amd64

package avx512f

import (
	"github.com/klauspost/cpuid/v2"
)

var hasAVX512F bool

func init() {
	detect()
}

func detect() {
	hasAVX512F = cpuid.CPU.Supports(cpuid.AVX512F)
}

// HasAVX512F returns true if AVX-512 Foundation is available.
func HasAVX512F() bool {
	return hasAVX512F
}

// SetSupport overrides detection. For testing.
func SetSupport(v bool) {
	hasAVX512F = v
}
