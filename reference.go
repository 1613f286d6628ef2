package qgemm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/lowbit-labs/qgemm/blob"
)

// ReferenceMatmul computes output = activation × weights with a dense
// float32 BLAS GEMM. weights is the unquantized (or dequantized) K×N matrix
// in row-major order. Verification paths compare kernel output against this.
func ReferenceMatmul(activation, weights, output []float32, m, n, k, lda, ldo int) {
	a := blas32.General{Rows: m, Cols: k, Stride: lda, Data: activation}
	b := blas32.General{Rows: k, Cols: n, Stride: n, Data: weights}
	c := blas32.General{Rows: m, Cols: n, Stride: ldo, Data: output}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)
}

// ReferenceFromBlob dequantizes weightBlob and runs the dense reference
// GEMM, so the only difference from the quantized kernels is the compute
// path itself.
func ReferenceFromBlob(activation []float32, weightBlob []byte, output []float32, m, n, k, lda, ldo int) error {
	const op = "ReferenceFromBlob"

	h, err := blob.Deserialize(weightBlob)
	if err != nil {
		return NewInvalidWeightFormatError(op, "cannot deserialize weight blob", err)
	}
	defer h.Close()

	w := make([]float32, k*n)
	if err := h.Dequantize(w); err != nil {
		return NewInvalidWeightFormatError(op, "cannot dequantize weight blob", err)
	}
	ReferenceMatmul(activation, w, output, m, n, k, lda, ldo)
	return nil
}
