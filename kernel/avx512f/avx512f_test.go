package avx512f

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lowbit-labs/qgemm/blob"
	"github.com/lowbit-labs/qgemm/kernel"
)

func deserialize(t *testing.T, buf []byte) *blob.Handle {
	t.Helper()
	h, err := blob.Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func naiveFromHandle(t *testing.T, h *blob.Handle, activation []float32, m, n, k, lda int) []float32 {
	t.Helper()
	w := make([]float32, k*n)
	if err := h.Dequantize(w); err != nil {
		t.Fatalf("Dequantize failed: %v", err)
	}
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for ki := 0; ki < k; ki++ {
				sum += float64(activation[i*lda+ki]) * float64(w[ki*n+j])
			}
			out[i*n+j] = float32(sum)
		}
	}
	return out
}

func TestComputeMatchesReference(t *testing.T) {
	tests := []struct {
		name      string
		m, n, k   int
		blockSize int
		threads   int
	}{
		{"small", 2, 3, 8, 4, 1},
		{"ragged k", 3, 5, 26, 8, 1},
		{"parallel", 32, 24, 96, 32, 4},
		{"single row", 1, 17, 64, 16, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(13))
			weights := make([]float32, tt.k*tt.n)
			activation := make([]float32, tt.m*tt.k)
			for i := range weights {
				weights[i] = rng.Float32()*2 - 1
			}
			for i := range activation {
				activation[i] = rng.Float32()*2 - 1
			}

			buf, err := blob.Pack(weights, tt.n, tt.k, tt.blockSize, blob.CoreAVX512F8x48)
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			h := deserialize(t, buf)

			output := make([]float32, tt.m*tt.n)
			req := &kernel.Request{
				Activation: activation,
				Handle:     h,
				Output:     output,
				M:          tt.m, N: tt.n, K: tt.k,
				LDA: tt.k, LDO: tt.n,
				Alpha: 1, Beta: 0,
				Threads: tt.threads,
			}
			if st := New().Compute(req); st != kernel.StatusSuccess {
				t.Fatalf("Compute = %v", st)
			}

			// Same dequantized values, float32 vs float64
			// accumulation order only.
			want := naiveFromHandle(t, h, activation, tt.m, tt.n, tt.k, tt.k)
			for i := range output {
				diff := math.Abs(float64(output[i] - want[i]))
				limit := 1e-4 * (1 + math.Abs(float64(want[i])))
				if diff > limit {
					t.Fatalf("output[%d] = %v, want %v (diff %v)", i, output[i], want[i], diff)
				}
			}
		})
	}
}

// TestComputeBlend exercises the alpha/beta path the dispatcher never uses
// (it always passes the identity), since the family contract includes it.
func TestComputeBlend(t *testing.T) {
	const m, n, k, blockSize = 2, 4, 16, 8
	const alpha, beta = 2.0, 0.5

	rng := rand.New(rand.NewSource(17))
	weights := make([]float32, k*n)
	activation := make([]float32, m*k)
	for i := range weights {
		weights[i] = rng.Float32()*2 - 1
	}
	for i := range activation {
		activation[i] = rng.Float32()*2 - 1
	}

	buf, err := blob.Pack(weights, n, k, blockSize, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	h := deserialize(t, buf)

	run := func(a, b float32, out []float32) {
		req := &kernel.Request{
			Activation: activation,
			Handle:     h,
			Output:     out,
			M:          m, N: n, K: k,
			LDA: k, LDO: n,
			Alpha: a, Beta: b,
			Threads: 1,
		}
		if st := New().Compute(req); st != kernel.StatusSuccess {
			t.Fatalf("Compute(alpha=%v beta=%v) = %v", a, b, st)
		}
	}

	identity := make([]float32, m*n)
	run(1, 0, identity)

	blended := make([]float32, m*n)
	for i := range blended {
		blended[i] = float32(i) // residual to accumulate into
	}
	run(alpha, beta, blended)

	for i := range blended {
		want := alpha*identity[i] + beta*float32(i)
		diff := math.Abs(float64(blended[i] - want))
		if diff > 1e-4*(1+math.Abs(float64(want))) {
			t.Fatalf("blended[%d] = %v, want %v", i, blended[i], want)
		}
	}
}

func TestComputeOverwritesStaleOutput(t *testing.T) {
	const m, n, k = 2, 3, 8

	weights := make([]float32, k*n)
	activation := make([]float32, m*k)
	for i := range weights {
		weights[i] = 1
	}
	for i := range activation {
		activation[i] = 1
	}

	buf, err := blob.Pack(weights, n, k, 4, blob.CoreAVX512F8x48)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	h := deserialize(t, buf)

	output := make([]float32, m*n)
	for i := range output {
		output[i] = 1e9 // stale garbage that beta=0 must ignore
	}
	req := &kernel.Request{
		Activation: activation,
		Handle:     h,
		Output:     output,
		M:          m, N: n, K: k,
		LDA: k, LDO: n,
		Alpha: 1, Beta: 0,
		Threads: 1,
	}
	if st := New().Compute(req); st != kernel.StatusSuccess {
		t.Fatalf("Compute = %v", st)
	}
	for i, v := range output {
		if math.Abs(float64(v-float32(k))) > 1e-3 {
			t.Errorf("output[%d] = %v, want %v", i, v, float32(k))
		}
	}
}

func TestComputeInvalidRequest(t *testing.T) {
	req := &kernel.Request{
		Activation: make([]float32, 8),
		Handle:     nil,
		Output:     make([]float32, 4),
		M:          1, N: 4, K: 8,
		LDA: 8, LDO: 4,
	}
	if st := New().Compute(req); st != kernel.StatusInvalidArgument {
		t.Errorf("Compute with nil handle = %v, want InvalidArgument", st)
	}
}

func TestKernelMetadata(t *testing.T) {
	k := New()
	if k.Name() == "" {
		t.Error("empty kernel name")
	}
	tags := k.CoreTypes()
	if len(tags) != 1 || tags[0] != blob.CoreAVX512F8x48 {
		t.Errorf("CoreTypes = %v, want [AVX512F_8X48]", tags)
	}
	_ = k.Available()
}
