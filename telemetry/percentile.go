package telemetry

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/nanoforge/qmfrt/config"
)

// PercentileAggregator is a fixed-capacity sliding window of float64
// samples (latencies, token rates, …) with linear-interpolation
// percentile queries, mutated under a single lock per collector per
// spec.md §5's shared-resource policy ("Percentile aggregator and
// request-counter state: mutated under a single lock per collector").
type PercentileAggregator struct {
	mu       sync.Mutex
	capacity int
	samples  []float64
	next     int // ring cursor once capacity is reached
	filled   bool
}

// NewPercentileAggregator returns an aggregator with the given
// capacity. A capacity <= 0 falls back to config.PercentileWindow
// (default 50).
func NewPercentileAggregator(capacity int) *PercentileAggregator {
	if capacity <= 0 {
		capacity = int(config.PercentileWindow())
	}
	return &PercentileAggregator{capacity: capacity}
}

// Add records one sample, evicting the oldest sample once the window
// is full (ring-buffer overwrite, not a growing slice).
func (a *PercentileAggregator) Add(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.samples) < a.capacity {
		a.samples = append(a.samples, v)
		return
	}
	a.samples[a.next] = v
	a.next = (a.next + 1) % a.capacity
	a.filled = true
}

// Percentile computes the p-th percentile (0-100) over a sorted copy
// of the current window via linear interpolation:
// index = p/100 * (n-1); result = sorted[lo]*(1-w) + sorted[hi]*w.
// Returns 0 if no samples have been recorded.
func (a *PercentileAggregator) Percentile(p float64) float64 {
	a.mu.Lock()
	sorted := append([]float64(nil), a.samples...)
	a.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)
	return interpolatedPercentile(sorted, p)
}

func interpolatedPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	index := (p / 100) * float64(n-1)
	lo := int(index)
	if lo >= n-1 {
		return sorted[n-1]
	}
	hi := lo + 1
	w := index - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Snapshot returns P50/P95/P99 together, the triple telemetry
// summaries typically report.
type Snapshot struct {
	P50, P95, P99 float64
	Count         int
}

// Snapshot computes the standard P50/P95/P99 triple over the current
// window in one pass.
func (a *PercentileAggregator) Snapshot() Snapshot {
	a.mu.Lock()
	sorted := append([]float64(nil), a.samples...)
	a.mu.Unlock()

	if len(sorted) == 0 {
		return Snapshot{}
	}
	sort.Float64s(sorted)
	return Snapshot{
		P50:   interpolatedPercentile(sorted, 50),
		P95:   interpolatedPercentile(sorted, 95),
		P99:   interpolatedPercentile(sorted, 99),
		Count: len(sorted),
	}
}

// CrossCheckP50 recomputes P50 via gonum/stat.Quantile as a
// cross-check against interpolatedPercentile; the two must agree
// within float64 rounding. gonum's LinInterp is Hyndman & Fan's type 4
// (position p*n), so p is shifted to land on the type-7 position
// (n-1)*p+1 that interpolatedPercentile uses. Exists for tests, not the
// hot path, since allocating and sorting twice per call would be
// wasteful in the aggregator itself.
func CrossCheckP50(samples []float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	p := ((n-1)*0.5 + 1) / n
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}
