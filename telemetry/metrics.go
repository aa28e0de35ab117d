// Package telemetry tracks per-request timing and resource metrics:
// three stopwatches (end-to-end, prefill, decode), the derived TTFT
// and tok/s quantities, a fixed-capacity percentile aggregator across
// requests, and best-effort allocation/CPU accounting behind an
// AllocationObserver interface so a non-GC target could substitute
// arena-level counters without this package changing shape.
//
// Grounded on api/types.go's Metrics/Summary() (prompt/eval
// count+duration pairing, stderr-style summary), generalized here from
// a single finished-request snapshot into the live stopwatch +
// streaming-TTFT shape spec.md §4.12 requires.
package telemetry

import (
	"fmt"
	"os"
	"time"
)

// GenerationMetrics is the finished-request snapshot spec.md §3
// defines: prompt/generated token counts, the three derived timing
// quantities, and the allocation/CPU counters sampled around the
// request.
type GenerationMetrics struct {
	PromptTokens    int
	GeneratedTokens int

	TTFT            time.Duration
	PrefillElapsed  time.Duration
	DecodeElapsed   time.Duration
	TotalElapsed    time.Duration
	PerTokenLatency time.Duration

	PrefillTokensPerSec float64
	DecodeTokensPerSec  float64

	AllocDelta AllocationDelta
	CPUFraction float64
}

// Summary writes a human-readable report to stderr, mirroring the
// teacher's Metrics.Summary() style of one guarded line per non-zero
// field.
func (m *GenerationMetrics) Summary() {
	if m.TotalElapsed > 0 {
		fmt.Fprintf(os.Stderr, "total duration:       %v\n", m.TotalElapsed)
	}
	if m.TTFT > 0 {
		fmt.Fprintf(os.Stderr, "time to first token:  %v\n", m.TTFT)
	}
	if m.PromptTokens > 0 {
		fmt.Fprintf(os.Stderr, "prompt tokens:        %d\n", m.PromptTokens)
		fmt.Fprintf(os.Stderr, "prefill rate:         %.2f tokens/s\n", m.PrefillTokensPerSec)
	}
	if m.GeneratedTokens > 0 {
		fmt.Fprintf(os.Stderr, "generated tokens:     %d\n", m.GeneratedTokens)
		fmt.Fprintf(os.Stderr, "decode rate:          %.2f tokens/s\n", m.DecodeTokensPerSec)
		fmt.Fprintf(os.Stderr, "per-token latency:    %v\n", m.PerTokenLatency)
	}
	if m.CPUFraction > 0 {
		fmt.Fprintf(os.Stderr, "cpu fraction:         %.2f\n", m.CPUFraction)
	}
}

// Recorder times one request across its prefill and decode phases and
// produces the final GenerationMetrics on Finish. It is not safe for
// concurrent use: one Recorder belongs to exactly one in-flight
// request, the same way an ExecutionContext belongs to exactly one
// session.
type Recorder struct {
	observer AllocationObserver

	start        time.Time
	firstToken   time.Time
	gotFirst     bool
	prefillStart time.Time
	prefillEnd   time.Time
	decodeStart  time.Time

	promptTokens    int
	generatedTokens int

	allocStart AllocationSample
}

// NewRecorder starts the end-to-end stopwatch immediately. observer
// may be nil, in which case DefaultObserver() is used.
func NewRecorder(promptTokens int, observer AllocationObserver) *Recorder {
	if observer == nil {
		observer = DefaultObserver()
	}
	return &Recorder{
		observer:     observer,
		start:        now(),
		promptTokens: promptTokens,
		allocStart:   observer.Sample(),
	}
}

// StartPrefill marks the beginning of prompt processing.
func (r *Recorder) StartPrefill() { r.prefillStart = now() }

// EndPrefill marks prompt processing complete and the decode phase's
// stopwatch starting.
func (r *Recorder) EndPrefill() {
	r.prefillEnd = now()
	r.decodeStart = r.prefillEnd
}

// RecordToken marks one generated token; the first call sets TTFT.
func (r *Recorder) RecordToken() {
	if !r.gotFirst {
		r.firstToken = now()
		r.gotFirst = true
	}
	r.generatedTokens++
}

// Finish stops all stopwatches and computes the final metrics
// snapshot, sampling the allocation observer a second time and
// computing the CPU utilization fraction.
func (r *Recorder) Finish(logicalCores int) GenerationMetrics {
	end := now()

	var ttft time.Duration
	if r.gotFirst {
		ttft = r.firstToken.Sub(r.start)
	}

	prefillElapsed := r.prefillEnd.Sub(r.prefillStart)
	if r.prefillEnd.IsZero() {
		prefillElapsed = 0
	}
	decodeElapsed := end.Sub(r.decodeStart)
	if r.decodeStart.IsZero() {
		decodeElapsed = 0
	}

	var prefillRate, decodeRate float64
	if prefillElapsed > 0 {
		prefillRate = float64(r.promptTokens) / prefillElapsed.Seconds()
	}
	var perToken time.Duration
	if r.generatedTokens > 0 && decodeElapsed > 0 {
		decodeRate = float64(r.generatedTokens) / decodeElapsed.Seconds()
		perToken = decodeElapsed / time.Duration(r.generatedTokens)
	}

	allocEnd := r.observer.Sample()
	cpuFrac := cpuFraction(r.allocStart, allocEnd, end.Sub(r.start), logicalCores)

	return GenerationMetrics{
		PromptTokens:        r.promptTokens,
		GeneratedTokens:     r.generatedTokens,
		TTFT:                ttft,
		PrefillElapsed:      prefillElapsed,
		DecodeElapsed:       decodeElapsed,
		TotalElapsed:        end.Sub(r.start),
		PerTokenLatency:     perToken,
		PrefillTokensPerSec: prefillRate,
		DecodeTokensPerSec:  decodeRate,
		AllocDelta:          allocEnd.Sub(r.allocStart),
		CPUFraction:         cpuFrac,
	}
}

// now is a thin indirection over time.Now so tests can substitute a
// deterministic clock without this package depending on a clock
// interface everywhere.
var now = time.Now

// cpuFraction implements spec.md §4.12's
// (process_cpu_time_end-start)/(wall_time*logical_core_count) clamped
// to [0,1]; it is best-effort and never fails the request, returning 0
// if logicalCores is non-positive or wall is zero.
func cpuFraction(start, end AllocationSample, wall time.Duration, logicalCores int) float64 {
	if logicalCores <= 0 || wall <= 0 {
		return 0
	}
	cpu := end.ProcessCPUTime - start.ProcessCPUTime
	if cpu < 0 {
		return 0
	}
	frac := cpu.Seconds() / (wall.Seconds() * float64(logicalCores))
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
