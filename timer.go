package qgemm

import (
	"sync"
	"time"
)

// Stopwatch is a two-state (idle/running) elapsed-time timer. Start resets
// and starts it; Stop halts it and reports the elapsed time. The state
// machine is mutex-guarded, so interleaved Start/Stop calls from different
// goroutines cannot corrupt it, though callers that want meaningful readings
// should still pair their own calls.
type Stopwatch struct {
	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// Start resets the stopwatch and starts timing. Starting a running
// stopwatch restarts it.
func (w *Stopwatch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
	w.startedAt = time.Now()
}

// Stop halts the stopwatch and returns the time elapsed since Start.
// Stopping an idle stopwatch is an InvalidState error rather than a zero
// reading, so misuse surfaces instead of producing silently wrong timings.
func (w *Stopwatch) Stop() (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return 0, NewInvalidStateError("Stopwatch.Stop", "stopwatch is not running")
	}
	w.running = false
	return time.Since(w.startedAt), nil
}

// Running reports whether the stopwatch is currently timing.
func (w *Stopwatch) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
