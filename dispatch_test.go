package qgemm

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/lowbit-labs/qgemm/blob"
	"github.com/lowbit-labs/qgemm/kernel"
)

func randomProblem(t *testing.T, m, n, k int) (activation, weights []float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(m*1000 + n*100 + k)))
	activation = make([]float32, m*k)
	weights = make([]float32, k*n)
	for i := range activation {
		activation[i] = rng.Float32()*2 - 1
	}
	for i := range weights {
		weights[i] = rng.Float32()*2 - 1
	}
	return activation, weights
}

func TestMatmulAllFamilies(t *testing.T) {
	const m, n, k, blockSize = 8, 16, 64, 32

	tags := []blob.CoreType{
		blob.CoreAVX512VNNI8x48,
		blob.CoreAVX512VNNI3x48KBlock,
		blob.CoreAVX512F8x48,
	}

	for _, tag := range tags {
		t.Run(tag.String(), func(t *testing.T) {
			activation, weights := randomProblem(t, m, n, k)
			buf, err := blob.Pack(weights, n, k, blockSize, tag)
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}

			output := make([]float32, m*n)
			if err := RunMatmul(activation, buf, output, m, n, k, k, n); err != nil {
				t.Fatalf("RunMatmul failed: %v", err)
			}

			want := make([]float32, m*n)
			if err := ReferenceFromBlob(activation, buf, want, m, n, k, k, n); err != nil {
				t.Fatalf("ReferenceFromBlob failed: %v", err)
			}
			if err := CompareFloat32s(output, want, QuantTolerance(k)); err != nil {
				t.Errorf("kernel output differs from dense reference: %v", err)
			}
		})
	}
}

func TestMatmulStrided(t *testing.T) {
	const m, n, k, blockSize = 4, 6, 32, 16
	const lda, ldo = k + 3, n + 2

	rng := rand.New(rand.NewSource(21))
	activation := make([]float32, (m-1)*lda+k)
	weights := make([]float32, k*n)
	for i := range activation {
		activation[i] = rng.Float32()*2 - 1
	}
	for i := range weights {
		weights[i] = rng.Float32()*2 - 1
	}

	buf, err := blob.Pack(weights, n, k, blockSize, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	output := make([]float32, (m-1)*ldo+n)
	if err := RunMatmul(activation, buf, output, m, n, k, lda, ldo); err != nil {
		t.Fatalf("RunMatmul failed: %v", err)
	}

	want := make([]float32, (m-1)*ldo+n)
	if err := ReferenceFromBlob(activation, buf, want, m, n, k, lda, ldo); err != nil {
		t.Fatalf("ReferenceFromBlob failed: %v", err)
	}
	for i := 0; i < m; i++ {
		row := output[i*ldo : i*ldo+n]
		wantRow := want[i*ldo : i*ldo+n]
		if err := CompareFloat32s(row, wantRow, DefaultTolerance()); err != nil {
			t.Errorf("row %d: %v", i, err)
		}
	}
}

func TestMatmulUnrecognizedTag(t *testing.T) {
	const m, n, k = 2, 4, 16

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 8, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	binary.LittleEndian.PutUint16(buf[6:8], 0xFFFF)

	const sentinel = float32(-123.5)
	output := make([]float32, m*n)
	for i := range output {
		output[i] = sentinel
	}

	err = RunMatmul(activation, buf, output, m, n, k, k, n)
	if err == nil {
		t.Fatal("RunMatmul accepted blob with unrecognized tag")
	}
	if !IsInvalidWeightFormatError(err) {
		t.Errorf("error = %v, want InvalidWeightFormat", err)
	}
	if !errors.Is(err, blob.ErrFormat) {
		t.Errorf("error chain %v does not reach blob.ErrFormat", err)
	}
	for i, v := range output {
		if v != sentinel {
			t.Fatalf("output[%d] modified on error path: %v", i, v)
		}
	}
}

func TestMatmulMalformedBlob(t *testing.T) {
	const m, n, k = 2, 4, 16

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 8, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	output := make([]float32, m*n)
	err = RunMatmul(activation, buf[:len(buf)-4], output, m, n, k, k, n)
	if !IsInvalidWeightFormatError(err) {
		t.Errorf("truncated blob: error = %v, want InvalidWeightFormat", err)
	}
}

func TestMatmulDimensionMismatch(t *testing.T) {
	const m, n, k = 2, 4, 16

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 8, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	// Caller claims k=8 but the blob says k=16.
	output := make([]float32, m*n)
	err = RunMatmul(activation, buf, output, m, n, 8, 8, n)
	if !IsInvalidArgError(err) {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestMatmulArgValidation(t *testing.T) {
	const m, n, k = 2, 4, 16
	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 8, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	output := make([]float32, m*n)

	tests := []struct {
		name               string
		m, n, k, lda, ldo  int
		activation, output []float32
	}{
		{"zero m", 0, n, k, k, n, activation, output},
		{"negative k", m, n, -1, k, n, activation, output},
		{"lda below k", m, n, k, k - 1, n, activation, output},
		{"ldo below n", m, n, k, k, n - 1, activation, output},
		{"short activation", m, n, k, k, n, activation[:5], output},
		{"short output", m, n, k, k, n, activation, output[:3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunMatmul(tt.activation, buf, tt.output, tt.m, tt.n, tt.k, tt.lda, tt.ldo)
			if !IsInvalidArgError(err) {
				t.Errorf("error = %v, want InvalidArgument", err)
			}
		})
	}
}

func TestMatmulReleasesHandles(t *testing.T) {
	const m, n, k = 4, 8, 32

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 16, blob.CoreAVX512VNNI8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	output := make([]float32, m*(n+2))

	before := blob.LiveHandles()

	// Success path.
	if err := RunMatmul(activation, buf, output, m, n, k, k, n); err != nil {
		t.Fatalf("RunMatmul failed: %v", err)
	}
	// Post-deserialize error path: buffers are big enough, but the blob
	// disagrees with the claimed n.
	if err := RunMatmul(activation, buf, output, m, n+1, k, k, n+1); !IsInvalidArgError(err) {
		t.Fatalf("dimension mismatch error = %v, want InvalidArgument", err)
	}
	// Kernel failure path.
	failing := kernel.NewRegistry()
	if err := failing.Register(&fakeKernel{status: kernel.StatusRuntimeError}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s := NewSession(WithRegistry(failing))
	if err := s.Matmul(activation, buf, output, m, n, k, k, n); err == nil {
		t.Fatal("kernel failure not surfaced")
	}

	if after := blob.LiveHandles(); after != before {
		t.Errorf("leaked %d weight handles", after-before)
	}
}

func TestMatmulDeterministic(t *testing.T) {
	const m, n, k = 8, 8, 64

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 32, blob.CoreAVX512VNNI8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	out1 := make([]float32, m*n)
	out2 := make([]float32, m*n)
	if err := RunMatmul(activation, buf, out1, m, n, k, k, n); err != nil {
		t.Fatalf("first RunMatmul failed: %v", err)
	}
	if err := RunMatmul(activation, buf, out2, m, n, k, k, n); err != nil {
		t.Fatalf("second RunMatmul failed: %v", err)
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("output[%d] differs between identical calls: %v vs %v", i, out1[i], out2[i])
		}
	}
}

// fakeKernel serves every core type and records the last request.
type fakeKernel struct {
	status kernel.Status
	last   *kernel.Request
}

func (f *fakeKernel) Name() string { return "fake" }
func (f *fakeKernel) CoreTypes() []blob.CoreType {
	return []blob.CoreType{
		blob.CoreAVX512VNNI8x48,
		blob.CoreAVX512VNNI3x48KBlock,
		blob.CoreAVX512F8x48,
	}
}
func (f *fakeKernel) Available() bool { return true }
func (f *fakeKernel) Compute(req *kernel.Request) kernel.Status {
	f.last = req
	return f.status
}

func TestMatmulKernelFailure(t *testing.T) {
	const m, n, k = 2, 4, 16

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 8, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	r := kernel.NewRegistry()
	fk := &fakeKernel{status: kernel.StatusRuntimeError}
	if err := r.Register(fk); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s := NewSession(WithRegistry(r))

	output := make([]float32, m*n)
	err = s.Matmul(activation, buf, output, m, n, k, k, n)
	if !IsKernelFailedError(err) {
		t.Fatalf("error = %v, want KernelExecutionFailed", err)
	}
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatal("error is not *Error")
	}
	if qerr.Status != kernel.StatusRuntimeError {
		t.Errorf("Status = %v, want RuntimeError", qerr.Status)
	}
}

func TestMatmulRequestPlumbing(t *testing.T) {
	const m, n, k = 3, 5, 8

	activation, weights := randomProblem(t, m, n, k)
	buf, err := blob.Pack(weights, n, k, 4, blob.CoreAVX512VNNI3x48KBlock)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	r := kernel.NewRegistry()
	fk := &fakeKernel{status: kernel.StatusSuccess}
	if err := r.Register(fk); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s := NewSession(WithRegistry(r))
	if _, err := s.SetThreads(3); err != nil {
		t.Fatalf("SetThreads failed: %v", err)
	}

	output := make([]float32, m*n)
	if err := s.Matmul(activation, buf, output, m, n, k, k, n); err != nil {
		t.Fatalf("Matmul failed: %v", err)
	}

	req := fk.last
	if req == nil {
		t.Fatal("kernel never invoked")
	}
	if req.M != m || req.N != n || req.K != k || req.LDA != k || req.LDO != n {
		t.Errorf("dimensions not plumbed through: %+v", req)
	}
	if req.Alpha != 1 || req.Beta != 0 {
		t.Errorf("blend coefficients = (%v, %v), want identity (1, 0)", req.Alpha, req.Beta)
	}
	if want := s.Device().Threads(); req.Threads != want {
		t.Errorf("Threads = %d, want %d", req.Threads, want)
	}
	if req.Handle == nil || !req.Handle.Closed() {
		t.Error("weight handle not released after dispatch")
	}
}
