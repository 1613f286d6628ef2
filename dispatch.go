package qgemm

import (
	"fmt"

	"github.com/lowbit-labs/qgemm/blob"
	"github.com/lowbit-labs/qgemm/kernel"
)

// Matmul computes output = activation × W for the quantized weight matrix W
// serialized in weightBlob. activation is an m×k row-major (lda-strided)
// float32 matrix; output is a caller-allocated m×n (ldo-strided) buffer.
//
// The blob header's capability tag selects the kernel family. An
// unrecognized tag or malformed blob is an InvalidWeightFormat error, and a
// kernel reporting a non-success status is a KernelExecutionFailed error; in
// both cases output is left untouched. The deserialized weight handle is
// released before Matmul returns on every path.
func (s *Session) Matmul(activation []float32, weightBlob []byte, output []float32, m, n, k, lda, ldo int) error {
	const op = "Matmul"

	if err := checkMatmulArgs(activation, output, m, n, k, lda, ldo); err != nil {
		return err
	}

	h, err := blob.Deserialize(weightBlob)
	if err != nil {
		return NewInvalidWeightFormatError(op, "cannot deserialize weight blob", err)
	}
	defer h.Close()

	if h.N() != n || h.K() != k {
		return NewInvalidArgError(op, fmt.Sprintf("weight blob is %dx%d, call expects k=%d n=%d",
			h.K(), h.N(), k, n))
	}

	krn, ok := s.registry.Lookup(h.CoreType())
	if !ok {
		return NewInvalidWeightFormatError(op,
			fmt.Sprintf("no kernel registered for core type %s", h.CoreType()), nil)
	}

	req := &kernel.Request{
		Activation: activation,
		Handle:     h,
		Output:     output,
		M:          m,
		N:          n,
		K:          k,
		LDA:        lda,
		LDO:        ldo,
		Alpha:      1,
		Beta:       0,
		Threads:    s.device.Threads(),
	}

	s.log.Debug().
		Str("kernel", krn.Name()).
		Stringer("core_type", h.CoreType()).
		Int("m", m).Int("n", n).Int("k", k).
		Int("threads", req.Threads).
		Msg("dispatching matmul")

	if st := krn.Compute(req); st != kernel.StatusSuccess {
		return NewKernelFailedError(op, krn.Name(), st)
	}
	return nil
}

// checkMatmulArgs validates caller-supplied buffers and dimensions before
// any blob work happens.
func checkMatmulArgs(activation, output []float32, m, n, k, lda, ldo int) error {
	const op = "Matmul"
	if m <= 0 || n <= 0 || k <= 0 {
		return NewInvalidArgError(op, fmt.Sprintf("dimensions must be positive: m=%d n=%d k=%d", m, n, k))
	}
	if lda < k {
		return NewInvalidArgError(op, fmt.Sprintf("lda %d < k %d", lda, k))
	}
	if ldo < n {
		return NewInvalidArgError(op, fmt.Sprintf("ldo %d < n %d", ldo, n))
	}
	if need := (m-1)*lda + k; len(activation) < need {
		return NewInvalidArgError(op, fmt.Sprintf("activation buffer too small: %d < %d", len(activation), need))
	}
	if need := (m-1)*ldo + n; len(output) < need {
		return NewInvalidArgError(op, fmt.Sprintf("output buffer too small: %d < %d", len(output), need))
	}
	return nil
}
