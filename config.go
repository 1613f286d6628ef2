// Package qgemm configuration constants
package qgemm

import "github.com/lowbit-labs/qgemm/blob"

// Quantization parameters
const (
	// Default quantization block size along K
	DefaultBlockSize = 32

	// Largest block size the packer is expected to see in practice;
	// bigger blocks trade accuracy for density
	MaxReasonableBlockSize = 256
)

// Numerical constants
const (
	// Machine epsilon for float32
	Float32Epsilon = 1.192092896e-07

	// Worst-case relative step of the symmetric 4-bit quantizer (1/7)
	WeightQuantStep = 1.0 / 7.0

	// Worst-case relative step of the dynamic int8 activation quantizer
	ActivationQuantStep = 1.0 / 127.0
)

// DefaultCoreType returns the preferred capability tag for packing new
// weights on this host: the VNNI family when the CPU supports it, the
// float32 family otherwise.
func DefaultCoreType() blob.CoreType {
	if cpuFeatures.HasAVX512VNNI {
		return blob.CoreAVX512VNNI8x48
	}
	return blob.CoreAVX512F8x48
}
