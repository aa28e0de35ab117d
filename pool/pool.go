// Package pool provides an explicitly owned, bucketed buffer pool for
// temporary FP32 arrays.
//
// The teacher's object pools are process-wide singletons (§9 re-
// architecture note: "thread-safe singleton object pools ... re-express
// as an explicitly owned pool passed by reference"). Here a *BufferPool
// is constructed by the caller (typically once per engine or scheduler)
// and passed to whatever needs scratch space; acquisition is scoped with
// guaranteed release via defer.
package pool

import (
	"math/bits"
	"sync"
)

// BufferPool buckets []float32 slices by the next power-of-two capacity
// that can hold a request. Each bucket is a sync.Pool, so rent/return is
// lock-free from the caller's perspective.
type BufferPool struct {
	buckets sync.Map // int(bucket exponent) -> *sync.Pool
}

// New returns a fresh, empty pool. There is no package-level singleton;
// every owner (a Model, an ExecutionContext, a scheduler) holds its own.
func New() *BufferPool {
	return &BufferPool{}
}

func bucketFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Get returns a []float32 with length n, possibly reused from the pool.
// Its capacity may exceed n (rounded up to the bucket's power of two).
func (p *BufferPool) Get(n int) []float32 {
	if n <= 0 {
		return nil
	}
	exp := bucketFor(n)
	bucket := p.bucketPool(exp)
	buf := bucket.Get().([]float32)
	return buf[:n]
}

// Put returns a buffer to the pool. Unless zero is false, the buffer is
// zeroed before being placed back so the next borrower never observes a
// previous tenant's data (§5 shared-resource policy).
func (p *BufferPool) Put(buf []float32, zero bool) {
	if cap(buf) == 0 {
		return
	}
	exp := bucketFor(cap(buf))
	full := buf[:cap(buf)]
	if zero {
		clear(full)
	}
	p.bucketPool(exp).Put(full)
}

func (p *BufferPool) bucketPool(exp int) *sync.Pool {
	if v, ok := p.buckets.Load(exp); ok {
		return v.(*sync.Pool)
	}
	size := 1 << exp
	newPool := &sync.Pool{
		New: func() any { return make([]float32, size) },
	}
	actual, _ := p.buckets.LoadOrStore(exp, newPool)
	return actual.(*sync.Pool)
}

// Lease is a scoped acquisition with guaranteed release. Use as:
//
//	lease := pool.Acquire(p, n)
//	defer lease.Release()
//	buf := lease.Buf
type Lease struct {
	pool *BufferPool
	Buf  []float32
	zero bool
}

// Acquire rents a buffer of length n; Release returns it, zeroed by
// default unless noZero opts out.
func Acquire(p *BufferPool, n int, noZero ...bool) *Lease {
	z := true
	if len(noZero) > 0 && noZero[0] {
		z = false
	}
	return &Lease{pool: p, Buf: p.Get(n), zero: z}
}

// Release returns the leased buffer to its pool. Safe to call multiple
// times; only the first call has effect.
func (l *Lease) Release() {
	if l == nil || l.Buf == nil {
		return
	}
	l.pool.Put(l.Buf, l.zero)
	l.Buf = nil
}
