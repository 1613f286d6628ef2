// Package vnni implements the dynamic-quantization integer kernel family.
//
// Activations are quantized on the fly to int8 per k-block (symmetric,
// scale = absmax/127), multiplied against the 4-bit block-quantized weights
// in the integer domain, and the per-block dot products are rescaled by the
// product of activation and weight scales. This is the family bound to the
// AVX512_VNNI_8X48 and AVX512_VNNI_3X48_KBLOCK core types; the Go loops
// mirror the VPDPBUSD accumulation structure and run on any host.
package vnni

import (
	"math"

	"github.com/lowbit-labs/qgemm/blob"
	"github.com/lowbit-labs/qgemm/kernel"
)

const actQuantMax = 127

// Kernel is the dynamic-quantization S4 k-block kernel family.
type Kernel struct{}

// New returns the kernel family instance.
func New() *Kernel {
	return &Kernel{}
}

// Name identifies the family.
func (k *Kernel) Name() string {
	return "vnni-s4-kblock"
}

// CoreTypes lists the two block-layout sub-variants this family serves.
func (k *Kernel) CoreTypes() []blob.CoreType {
	return []blob.CoreType{blob.CoreAVX512VNNI8x48, blob.CoreAVX512VNNI3x48KBlock}
}

// Available reports AVX512-VNNI support on the host.
func (k *Kernel) Available() bool {
	return HasVNNI()
}

// Compute runs Output = Activation × W. The family has no blend path:
// Alpha and Beta are ignored and the output is overwritten.
func (k *Kernel) Compute(req *kernel.Request) kernel.Status {
	if err := req.Validate(); err != nil {
		return kernel.StatusInvalidArgument
	}

	h := req.Handle
	blockSize := h.BlockSize()
	numBlocks := h.NumBlocks()
	colStride := numBlocks * blockSize / 2
	scales := h.Scales()
	packed := h.Packed()

	err := kernel.ForEachStrip(req.M, req.Threads, func(r0, r1 int) error {
		qa := make([]int8, blockSize)
		acc := make([]float32, req.N)

		for i := r0; i < r1; i++ {
			aRow := req.Activation[i*req.LDA:]
			for j := range acc {
				acc[j] = 0
			}

			for b := 0; b < numBlocks; b++ {
				k0 := b * blockSize
				k1 := k0 + blockSize
				if k1 > req.K {
					k1 = req.K
				}
				cnt := k1 - k0

				// Dynamic int8 quantization of the activation block.
				var absMax float32
				for t := 0; t < cnt; t++ {
					v := aRow[k0+t]
					if v < 0 {
						v = -v
					}
					if v > absMax {
						absMax = v
					}
				}
				if absMax == 0 {
					continue
				}
				sa := absMax / actQuantMax
				inv := actQuantMax / absMax
				for t := 0; t < cnt; t++ {
					q := int32(math.RoundToEven(float64(aRow[k0+t] * inv)))
					if q > actQuantMax {
						q = actQuantMax
					}
					if q < -actQuantMax {
						q = -actQuantMax
					}
					qa[t] = int8(q)
				}

				// Integer dot against the 4-bit weights, one column
				// at a time, then rescale by both block scales.
				for j := 0; j < req.N; j++ {
					sw := scales[b*req.N+j]
					if sw == 0 {
						continue
					}
					wcol := packed[j*colStride+k0/2:]
					var idot int32
					for t := 0; t+1 < cnt; t += 2 {
						w := wcol[t/2]
						lo := int32(int8(w<<4) >> 4)
						hi := int32(int8(w) >> 4)
						idot += int32(qa[t])*lo + int32(qa[t+1])*hi
					}
					if cnt%2 != 0 {
						w := wcol[(cnt-1)/2]
						lo := int32(int8(w<<4) >> 4)
						idot += int32(qa[cnt-1]) * lo
					}
					acc[j] += float32(idot) * sa * sw
				}
			}

			out := req.Output[i*req.LDO:]
			copy(out[:req.N], acc)
		}
		return nil
	})
	if err != nil {
		return kernel.StatusRuntimeError
	}
	return kernel.StatusSuccess
}
