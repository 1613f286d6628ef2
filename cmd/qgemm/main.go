// qgemm — capability-dispatched quantized matmul tool
//
// Usage:
//
//	qgemm info
//	qgemm bench --m 256 --n 1024 --k 1024 --tag vnni --verify
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lowbit-labs/qgemm"
	"github.com/lowbit-labs/qgemm/blob"
)

type benchConfig struct {
	M, N, K   int
	BlockSize int
	Threads   int
	Iters     int
	Tag       string
	Verify    bool
	Debug     bool
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	root := &cobra.Command{
		Use:   "qgemm",
		Short: "qgemm — capability-dispatched quantized matmul",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Print CPU capabilities and available kernel families",
		Run: func(cmd *cobra.Command, args []string) {
			runInfo()
		},
	}

	var cfg benchConfig
	bench := &cobra.Command{
		Use:   "bench",
		Short: "Pack random weights and time the dispatched matmul",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(&cfg)
		},
	}
	f := bench.Flags()
	f.IntVar(&cfg.M, "m", 256, "Activation rows")
	f.IntVar(&cfg.N, "n", 1024, "Output columns")
	f.IntVar(&cfg.K, "k", 1024, "Reduction depth")
	f.IntVar(&cfg.BlockSize, "block", qgemm.DefaultBlockSize, "Quantization block size")
	f.IntVar(&cfg.Threads, "threads", 0, "Worker threads (0 = all logical cores)")
	f.IntVar(&cfg.Iters, "iters", 10, "Timed iterations")
	f.StringVar(&cfg.Tag, "tag", "", "Core type: vnni, vnni-kblock, avx512f (empty = best for host)")
	f.BoolVar(&cfg.Verify, "verify", false, "Check output against the dense reference")
	f.BoolVar(&cfg.Debug, "debug", false, "Log per-dispatch debug events")

	root.AddCommand(info, bench)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInfo() {
	fmt.Println(qgemm.CPUInfo())
	fmt.Printf("Cores: %d physical / %d logical\n", qgemm.PhysicalCores(), qgemm.Threads())
	if v := qgemm.Version(); v != "" {
		fmt.Printf("Version: %s\n", v)
	}

	fmt.Println("Kernel families:")
	for _, k := range qgemm.DefaultRegistry().List() {
		avail := "unavailable (pure-Go fallback loops)"
		if k.Available() {
			avail = "available"
		}
		var tags []string
		for _, t := range k.CoreTypes() {
			tags = append(tags, t.String())
		}
		fmt.Printf("  %-20s %s  [%s]\n", k.Name(), avail, strings.Join(tags, ", "))
	}
}

func parseTag(s string) (blob.CoreType, error) {
	switch s {
	case "":
		return qgemm.DefaultCoreType(), nil
	case "vnni":
		return blob.CoreAVX512VNNI8x48, nil
	case "vnni-kblock":
		return blob.CoreAVX512VNNI3x48KBlock, nil
	case "avx512f":
		return blob.CoreAVX512F8x48, nil
	}
	return blob.CoreUnknown, fmt.Errorf("unknown tag %q (want vnni, vnni-kblock or avx512f)", s)
}

func runBench(cfg *benchConfig) error {
	tag, err := parseTag(cfg.Tag)
	if err != nil {
		return err
	}
	if cfg.Iters < 1 {
		cfg.Iters = 1
	}

	opts := []qgemm.Option{}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		opts = append(opts, qgemm.WithLogger(log.Logger))
	}
	session := qgemm.NewSession(opts...)

	threads := cfg.Threads
	if threads == 0 {
		threads = session.Device().Threads()
	}
	effective, err := session.SetThreads(threads)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(1))
	weights := make([]float32, cfg.K*cfg.N)
	activation := make([]float32, cfg.M*cfg.K)
	output := make([]float32, cfg.M*cfg.N)
	for i := range weights {
		weights[i] = rng.Float32()*2 - 1
	}
	for i := range activation {
		activation[i] = rng.Float32()*2 - 1
	}

	packed, err := blob.Pack(weights, cfg.N, cfg.K, cfg.BlockSize, tag)
	if err != nil {
		return err
	}
	log.Info().
		Stringer("core_type", tag).
		Int("threads", effective).
		Int("blob_bytes", len(packed)).
		Msgf("benchmarking %dx%dx%d", cfg.M, cfg.N, cfg.K)

	// Warmup run, also used for verification.
	if err := session.Matmul(activation, packed, output, cfg.M, cfg.N, cfg.K, cfg.K, cfg.N); err != nil {
		return err
	}

	if cfg.Verify {
		want := make([]float32, cfg.M*cfg.N)
		if err := qgemm.ReferenceFromBlob(activation, packed, want, cfg.M, cfg.N, cfg.K, cfg.K, cfg.N); err != nil {
			return err
		}
		if err := qgemm.CompareFloat32s(output, want, qgemm.QuantTolerance(cfg.K)); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		log.Info().Msg("verification passed")
	}

	var sw qgemm.Stopwatch
	sw.Start()
	for i := 0; i < cfg.Iters; i++ {
		if err := session.Matmul(activation, packed, output, cfg.M, cfg.N, cfg.K, cfg.K, cfg.N); err != nil {
			return err
		}
	}
	elapsed, err := sw.Stop()
	if err != nil {
		return err
	}

	perCall := elapsed / time.Duration(cfg.Iters)
	flops := 2 * float64(cfg.M) * float64(cfg.N) * float64(cfg.K)
	gflops := flops / perCall.Seconds() / 1e9
	fmt.Printf("time: %.1f us/call  (%.2f GFLOP/s, %d threads)\n",
		float64(perCall.Microseconds()), gflops, effective)
	return nil
}
