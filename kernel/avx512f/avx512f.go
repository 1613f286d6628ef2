// Package avx512f implements the float32 k-block kernel family.
//
// Weights are dequantized block by block into a column tile and accumulated
// against the float32 activations with a fused multiply-add loop, then
// blended into the output as Output = Alpha*acc + Beta*Output. The family is
// bound to the AVX512F_8X48 core type; the dispatcher passes the identity
// blend (alpha=1, beta=0), meaning overwrite with no residual accumulation.
package avx512f

import (
	"github.com/lowbit-labs/qgemm/blob"
	"github.com/lowbit-labs/qgemm/kernel"
)

// Kernel is the float32 S4 k-block kernel family.
type Kernel struct{}

// New returns the kernel family instance.
func New() *Kernel {
	return &Kernel{}
}

// Name identifies the family.
func (k *Kernel) Name() string {
	return "avx512f-s4-kblock"
}

// CoreTypes lists the single tag this family serves.
func (k *Kernel) CoreTypes() []blob.CoreType {
	return []blob.CoreType{blob.CoreAVX512F8x48}
}

// Available reports AVX-512 Foundation support on the host.
func (k *Kernel) Available() bool {
	return HasAVX512F()
}

// Compute runs Output = Alpha*(Activation × W) + Beta*Output.
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
		wcol := make([]float32, blockSize)
		acc := make([]float32, req.N)

		for i := r0; i < r1; i++ {
			aRow := req.Activation[i*req.LDA:]
			for j := range acc {
				acc[j] = 0
			}

			for j := 0; j < req.N; j++ {
				var sum float32
				for b := 0; b < numBlocks; b++ {
					k0 := b * blockSize
					k1 := k0 + blockSize
					if k1 > req.K {
						k1 = req.K
					}
					cnt := k1 - k0

					sw := scales[b*req.N+j]
					if sw == 0 {
						continue
					}

					// Dequantize the column block once, then FMA
					// against the activation row.
					pk := packed[j*colStride+k0/2:]
					for t := 0; t+1 < cnt; t += 2 {
						w := pk[t/2]
						wcol[t] = float32(int8(w<<4)>>4) * sw
						wcol[t+1] = float32(int8(w)>>4) * sw
					}
					if cnt%2 != 0 {
						w := pk[(cnt-1)/2]
						wcol[cnt-1] = float32(int8(w<<4)>>4) * sw
					}

					for t := 0; t < cnt; t++ {
						sum += aRow[k0+t] * wcol[t]
					}
				}
				acc[j] = sum
			}

			out := req.Output[i*req.LDO:]
			if req.Alpha == 1 && req.Beta == 0 {
				copy(out[:req.N], acc)
			} else {
				for j := 0; j < req.N; j++ {
					out[j] = req.Alpha*acc[j] + req.Beta*out[j]
				}
			}
		}
		return nil
	})
	if err != nil {
		return kernel.StatusRuntimeError
	}
	return kernel.StatusSuccess
}
