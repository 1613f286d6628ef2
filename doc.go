// Package qgemm dispatches quantized-weight matrix multiplications to the
// kernel family named by a weight blob's capability tag.
//
// A weight matrix is packed once into a serialized blob (see the blob
// package) whose header records which kernel family must consume it. At call
// time the dispatcher deserializes the header, selects the matching kernel
// from a registry, and invokes it with the caller's activation and output
// buffers:
//
//	w, _ := blob.Pack(weights, n, k, 32, blob.CoreAVX512F8x48)
//	err := qgemm.RunMatmul(activation, w, output, m, n, k, k, n)
//
// Sessions bundle the mutable process state (worker-thread count, kernel
// registry, logger) so concurrent-access hazards are visible in the API
// rather than hidden behind package globals. The package-level entry points
// operate on a shared default session.
package qgemm
