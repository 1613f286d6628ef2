//go:build amd64

package vnni

import (
	"github.com/klauspost/cpuid/v2"
)

var hasVNNI bool

func init() {
	detect()
}

// detect probes for AVX512-VNNI. AVX512F alone is not enough; the family's
// integer dot layout assumes the VPDPBUSD path.
func detect() {
	hasVNNI = cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512VNNI)
}

// HasVNNI returns true if AVX512-VNNI is available.
func HasVNNI() bool {
	return hasVNNI
}

// SetSupport overrides detection. For testing.
func SetSupport(v bool) {
	hasVNNI = v
}
