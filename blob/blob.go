// Package blob implements the serialized compressed-weight format consumed by
// the qgemm dispatcher.
//
// A weight blob is a K×N weight matrix quantized to 4-bit signed values in
// fixed-size blocks along the K dimension, with one float32 scale per block
// per column. The header carries a capability tag (CoreType) naming the kernel
// family that must consume the blob. The layout is versioned and frozen; see
// the field table on Deserialize.
package blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Serialized format constants.
const (
	// Magic identifies a serialized weight blob.
	Magic = "QWB1"

	// Version is the current serialization format version.
	Version = 1

	// HeaderSize is the fixed size of the blob header in bytes.
	HeaderSize = 24

	// MinBlockSize is the smallest permitted quantization block size.
	// Block sizes must be even so that packed nibbles never straddle blocks.
	MinBlockSize = 2

	// quantMax is the largest magnitude representable by a signed 4-bit
	// symmetric quantizer.
	quantMax = 7
)

// CoreType is the capability tag embedded in a blob header. It identifies the
// kernel family (and block-layout sub-variant) that must process the blob.
// The numeric values mirror the consumed kernel-library enumeration and must
// not be renumbered.
type CoreType uint16

const (
	CoreUnknown CoreType = 0

	// CoreAVX512VNNI8x48 and CoreAVX512VNNI3x48KBlock are the two
	// block-layout sub-variants served by the dynamic-quantization
	// integer kernel family.
	CoreAVX512VNNI8x48       CoreType = 1
	CoreAVX512VNNI3x48KBlock CoreType = 2

	// CoreAVX512F8x48 is served by the float32 kernel family.
	CoreAVX512F8x48 CoreType = 3
)

// String returns the core type name as it appears in kernel-library headers.
func (t CoreType) String() string {
	switch t {
	case CoreAVX512VNNI8x48:
		return "AVX512_VNNI_8X48"
	case CoreAVX512VNNI3x48KBlock:
		return "AVX512_VNNI_3X48_KBLOCK"
	case CoreAVX512F8x48:
		return "AVX512F_8X48"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// Valid reports whether t names a known kernel family.
func (t CoreType) Valid() bool {
	switch t {
	case CoreAVX512VNNI8x48, CoreAVX512VNNI3x48KBlock, CoreAVX512F8x48:
		return true
	}
	return false
}

// ErrFormat is the category error wrapped by every deserialization failure.
var ErrFormat = errors.New("invalid weight blob format")

// ErrClosed is returned when a released handle is used.
var ErrClosed = errors.New("weight blob handle is closed")

// liveHandles counts handles that have been deserialized but not yet closed.
// Tests use the counter to verify that dispatch releases its handle on every
// exit path.
var liveHandles atomic.Int64

// LiveHandles returns the number of currently open handles.
func LiveHandles() int64 {
	return liveHandles.Load()
}

// Handle is an exclusively-owned view of a deserialized weight blob. It is
// valid until Close is called. The slices it exposes alias the buffer passed
// to Deserialize, which must therefore outlive the handle.
type Handle struct {
	coreType  CoreType
	n, k      int
	blockSize int
	scales    []float32
	packed    []byte
	closed    atomic.Bool
}

// Deserialize validates buf and returns an owned handle over its contents.
// The caller is responsible for calling Close exactly once (extra calls are
// harmless). Layout, all integers little-endian:
//
//	offset  size  field
//	0       4     magic "QWB1"
//	4       2     format version
//	6       2     core type (capability tag)
//	8       4     N (output columns)
//	12      4     K (reduction depth)
//	16      4     quantization block size
//	20      4     flags (reserved, zero)
//	24      ...   scales  float32[numBlocks*N]
//	...     ...   packed  uint8[numBlocks*blockSize/2*N]
//
// Any structural defect, including an unrecognized core type, yields an error
// wrapping ErrFormat.
func Deserialize(buf []byte) (*Handle, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: buffer too short for header (%d bytes)", ErrFormat, len(buf))
	}
	if string(buf[0:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, buf[0:4])
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	coreType := CoreType(binary.LittleEndian.Uint16(buf[6:8]))
	if !coreType.Valid() {
		return nil, fmt.Errorf("%w: unrecognized core type %d", ErrFormat, uint16(coreType))
	}
	n := int(binary.LittleEndian.Uint32(buf[8:12]))
	k := int(binary.LittleEndian.Uint32(buf[12:16]))
	blockSize := int(binary.LittleEndian.Uint32(buf[16:20]))
	flags := binary.LittleEndian.Uint32(buf[20:24])
	if n <= 0 || k <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimensions n=%d k=%d", ErrFormat, n, k)
	}
	if blockSize < MinBlockSize || blockSize%2 != 0 {
		return nil, fmt.Errorf("%w: bad block size %d", ErrFormat, blockSize)
	}
	if flags != 0 {
		return nil, fmt.Errorf("%w: reserved flags set (%#x)", ErrFormat, flags)
	}

	numBlocks := (k + blockSize - 1) / blockSize
	scaleBytes := numBlocks * n * 4
	packedBytes := numBlocks * blockSize / 2 * n
	want := HeaderSize + scaleBytes + packedBytes
	if len(buf) != want {
		return nil, fmt.Errorf("%w: length %d, want %d for n=%d k=%d block=%d",
			ErrFormat, len(buf), want, n, k, blockSize)
	}

	scales := make([]float32, numBlocks*n)
	for i := range scales {
		off := HeaderSize + i*4
		scales[i] = float32frombytes(buf[off : off+4])
	}

	h := &Handle{
		coreType:  coreType,
		n:         n,
		k:         k,
		blockSize: blockSize,
		scales:    scales,
		packed:    buf[HeaderSize+scaleBytes:],
	}
	liveHandles.Add(1)
	return h, nil
}

// Close releases the handle. It is idempotent and always succeeds.
func (h *Handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.scales = nil
		h.packed = nil
		liveHandles.Add(-1)
	}
	return nil
}

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool { return h.closed.Load() }

// CoreType returns the capability tag from the blob header.
func (h *Handle) CoreType() CoreType { return h.coreType }

// N returns the number of output columns.
func (h *Handle) N() int { return h.n }

// K returns the reduction depth.
func (h *Handle) K() int { return h.k }

// BlockSize returns the quantization block size along K.
func (h *Handle) BlockSize() int { return h.blockSize }

// NumBlocks returns the number of quantization blocks along K. The final
// block is zero-padded when K is not a multiple of the block size.
func (h *Handle) NumBlocks() int { return (h.k + h.blockSize - 1) / h.blockSize }

// Scales returns the per-block scales, indexed scales[block*N + col].
func (h *Handle) Scales() []float32 { return h.scales }

// Packed returns the packed 4-bit quants. Column col occupies
// packed[col*numBlocks*blockSize/2 : (col+1)*numBlocks*blockSize/2], two
// values per byte, low nibble first.
func (h *Handle) Packed() []byte { return h.packed }

// Quant returns the signed 4-bit quantized value at reduction index ki of
// column col. Indices beyond K (final-block padding) read as zero.
func (h *Handle) Quant(ki, col int) int8 {
	colStride := h.NumBlocks() * h.blockSize / 2
	b := h.packed[col*colStride+ki/2]
	if ki%2 == 0 {
		return int8(b<<4) >> 4
	}
	return int8(b) >> 4
}

// Dequantize expands the blob into dst as a row-major K×N float32 matrix.
// dst must hold at least K*N elements. It returns ErrClosed after Close.
// Dequantize is used by verification paths; the kernel families read the
// packed form directly.
func (h *Handle) Dequantize(dst []float32) error {
	if h.Closed() {
		return ErrClosed
	}
	if len(dst) < h.k*h.n {
		return fmt.Errorf("destination too small: %d < %d", len(dst), h.k*h.n)
	}
	for col := 0; col < h.n; col++ {
		for ki := 0; ki < h.k; ki++ {
			scale := h.scales[(ki/h.blockSize)*h.n+col]
			dst[ki*h.n+col] = float32(h.Quant(ki, col)) * scale
		}
	}
	return nil
}

func float32frombytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
