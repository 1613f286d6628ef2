// Package qgemm tolerance-based verification for floating-point comparisons
package qgemm

import (
	"fmt"
	"math"
)

// ToleranceConfig defines tolerance parameters for floating-point comparison
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float32

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float32
}

// DefaultTolerance returns tolerances for float32 compute paths that differ
// only in accumulation order
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol: 1e-5,
		RelTol: 1e-4,
	}
}

// QuantTolerance returns tolerances for comparing quantized kernel output
// against the dense reference. The float32 family's only extra error source
// is accumulation order; the VNNI family additionally quantizes activations
// to int8, so its bound scales with the activation quantizer step.
func QuantTolerance(k int) ToleranceConfig {
	// Per-product activation error is ~ActivationQuantStep; block errors
	// accumulate roughly with sqrt(k).
	rel := float32(ActivationQuantStep) * float32(math.Sqrt(float64(k)))
	if rel < 1e-3 {
		rel = 1e-3
	}
	return ToleranceConfig{
		AbsTol: 4 * rel,
		RelTol: 4 * rel,
	}
}

// Float32NearEqual checks if two float32 values are equal within tolerance
func Float32NearEqual(a, b float32, tol ToleranceConfig) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return math.IsNaN(float64(a)) && math.IsNaN(float64(b))
	}
	if a == b {
		return true
	}

	diff := float32(math.Abs(float64(a - b)))
	if diff <= tol.AbsTol {
		return true
	}

	larger := float32(math.Max(math.Abs(float64(a)), math.Abs(float64(b))))
	return diff <= larger*tol.RelTol
}

// CompareFloat32s checks two slices element-wise and reports the first
// mismatch with its index and values.
func CompareFloat32s(got, want []float32, tol ToleranceConfig) error {
	if len(got) != len(want) {
		return fmt.Errorf("length mismatch: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if !Float32NearEqual(got[i], want[i], tol) {
			return fmt.Errorf("mismatch at index %d: got %v, want %v (abs_tol=%v rel_tol=%v)",
				i, got[i], want[i], tol.AbsTol, tol.RelTol)
		}
	}
	return nil
}
