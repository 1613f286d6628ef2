package blob

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Pack quantizes a row-major K×N float32 weight matrix to the 4-bit block
// format and serializes it with the given capability tag. blockSize must be
// even and at least MinBlockSize; K is zero-padded to a whole number of
// blocks in the packed data.
//
// Quantization is symmetric per block per column: scale = absmax/7, values
// rounded to nearest and clamped to [-8, 7]. The resulting blob round-trips
// through Deserialize and is consumable by the kernel family matching tag.
func Pack(weights []float32, n, k, blockSize int, tag CoreType) ([]byte, error) {
	if n <= 0 || k <= 0 {
		return nil, fmt.Errorf("non-positive dimensions n=%d k=%d", n, k)
	}
	if blockSize < MinBlockSize || blockSize%2 != 0 {
		return nil, fmt.Errorf("block size must be even and >= %d, got %d", MinBlockSize, blockSize)
	}
	if !tag.Valid() {
		return nil, fmt.Errorf("invalid core type %d", uint16(tag))
	}
	if len(weights) < k*n {
		return nil, fmt.Errorf("weights too short: %d < %d", len(weights), k*n)
	}

	numBlocks := (k + blockSize - 1) / blockSize
	colStride := numBlocks * blockSize / 2
	buf := make([]byte, HeaderSize+numBlocks*n*4+colStride*n)

	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(tag))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(k))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(blockSize))
	// flags at 20:24 stay zero

	scales := buf[HeaderSize : HeaderSize+numBlocks*n*4]
	packed := buf[HeaderSize+numBlocks*n*4:]

	for col := 0; col < n; col++ {
		for b := 0; b < numBlocks; b++ {
			k0 := b * blockSize
			k1 := k0 + blockSize
			if k1 > k {
				k1 = k
			}

			var absMax float32
			for ki := k0; ki < k1; ki++ {
				v := weights[ki*n+col]
				if v < 0 {
					v = -v
				}
				if v > absMax {
					absMax = v
				}
			}

			scale := absMax / quantMax
			inv := float32(0)
			if scale > 0 {
				inv = 1 / scale
			}
			binary.LittleEndian.PutUint32(scales[(b*n+col)*4:], math.Float32bits(scale))

			for ki := k0; ki < k0+blockSize; ki += 2 {
				lo := quantize(weights, ki, col, n, k, inv)
				hi := quantize(weights, ki+1, col, n, k, inv)
				packed[col*colStride+ki/2] = byte(lo&0x0F) | byte(hi&0x0F)<<4
			}
		}
	}
	return buf, nil
}

// quantize maps one weight to its signed 4-bit code. Padding positions
// beyond K quantize to zero.
func quantize(weights []float32, ki, col, n, k int, inv float32) int8 {
	if ki >= k || inv == 0 {
		return 0
	}
	q := int(math.RoundToEven(float64(weights[ki*n+col] * inv)))
	if q > quantMax {
		q = quantMax
	}
	if q < -quantMax-1 {
		q = -quantMax - 1
	}
	return int8(q)
}
