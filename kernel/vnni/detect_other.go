//go:build !amd64

package vnni

// AVX512-VNNI is x86-64 only.

var hasVNNI = false

func detect() {}

// HasVNNI returns true if AVX512-VNNI is available.
func HasVNNI() bool { return hasVNNI }

// SetSupport overrides detection. For testing.
func SetSupport(v bool) { hasVNNI = v }
