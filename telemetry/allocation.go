package telemetry

import (
	"runtime"
	"time"
)

// AllocationSample is a point-in-time reading of the counters
// GenerationMetrics reports deltas of. Go's garbage collector has no
// Gen0/1/2 distinction the way a generational managed runtime does;
// per spec.md §9 this is re-expressed as the HeapAlloc/NumGC/
// PauseTotalNs triple runtime.MemStats already exposes, behind the
// same AllocationObserver seam a non-GC target (an arena allocator)
// would implement differently.
type AllocationSample struct {
	HeapAllocBytes uint64
	NumGC          uint32
	PauseTotal      time.Duration
	ProcessCPUTime time.Duration
}

// AllocationDelta is the difference between two samples taken around a
// request.
type AllocationDelta struct {
	HeapAllocBytes int64
	NumGC          int64
	PauseTotal     time.Duration
}

// Sub returns b - a.
func (b AllocationSample) Sub(a AllocationSample) AllocationDelta {
	return AllocationDelta{
		HeapAllocBytes: int64(b.HeapAllocBytes) - int64(a.HeapAllocBytes),
		NumGC:          int64(b.NumGC) - int64(a.NumGC),
		PauseTotal:     b.PauseTotal - a.PauseTotal,
	}
}

// AllocationObserver abstracts "sample current allocation/CPU
// counters" so the runtime never assumes a particular GC's
// vocabulary. DefaultObserver backs it with runtime.MemStats plus a
// best-effort process CPU time reading.
type AllocationObserver interface {
	Sample() AllocationSample
}

type memStatsObserver struct{}

// DefaultObserver returns the stdlib-backed AllocationObserver used
// throughout this module.
func DefaultObserver() AllocationObserver { return memStatsObserver{} }

func (memStatsObserver) Sample() AllocationSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return AllocationSample{
		HeapAllocBytes: ms.HeapAlloc,
		NumGC:          ms.NumGC,
		PauseTotal:     time.Duration(ms.PauseTotalNs),
		ProcessCPUTime: processCPUTime(),
	}
}
