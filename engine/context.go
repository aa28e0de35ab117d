// Package engine provides ExecutionContext, the per-request binding of
// a KV cache to the prefill/decode mode it implies, plus the
// cancellation handle and prompt-sequence truncation logic a caller
// drives the compute kernels with. Full per-layer transformer
// composition is a caller concern (this module exposes kernels and
// weights; composing them into a model forward pass is out of scope),
// so ExecutionContext only tracks position/mode/cancellation, not a
// layer graph.
//
// Grounded on runner/ollamarunner/runner_sequence.go's
// NewSequence/position-tracking shape.
package engine

import (
	"github.com/nanoforge/qmfrt/kernel"
	"github.com/nanoforge/qmfrt/kvcache"
	"github.com/nanoforge/qmfrt/pool"
)

// Mode is derived from whether the bound KV cache already holds any
// positions: an empty cache means this call is prefilling the prompt,
// a non-empty one means it is decoding the next token.
type Mode int

const (
	Prefill Mode = iota
	Decode
)

func (m Mode) String() string {
	if m == Prefill {
		return "prefill"
	}
	return "decode"
}

// ExecutionContext binds one request's KV cache and cancellation
// signal together and derives its compute mode from the cache's state.
// It also owns a scratch BufferPool (spec.md §9's re-architected
// explicitly-owned pool) so repeated per-token attention calls against
// this context's cache don't allocate a fresh scores buffer every
// decode step.
type ExecutionContext struct {
	Cache   *kvcache.Cache
	Cancel  *CancelSignal
	Scratch *pool.BufferPool
}

// NewExecutionContext wraps an already-allocated cache. Mode is
// re-derived on every call to Mode() rather than cached, since the
// cache's CurrentLen changes as the caller appends positions.
func NewExecutionContext(cache *kvcache.Cache) *ExecutionContext {
	return &ExecutionContext{Cache: cache, Cancel: NewCancelSignal(), Scratch: pool.New()}
}

// Mode reports Prefill if the cache is empty, Decode otherwise.
func (ec *ExecutionContext) Mode() Mode {
	if ec.Cache.CurrentLen() == 0 {
		return Prefill
	}
	return Decode
}

// Position is the next position that will be written to the cache.
func (ec *ExecutionContext) Position() int {
	return ec.Cache.CurrentLen()
}

// Attend runs causal self-attention for one (layer, head) against this
// context's cache, leasing its score scratch from Scratch instead of
// allocating one per call. causalUpTo follows kernel.FusedAttention's
// convention (-1 attends to the whole cache).
func (ec *ExecutionContext) Attend(layer, head int, query []float32, scale float32, causalUpTo int, out []float32) error {
	keys, values, err := ec.Cache.HeadView(layer, head)
	if err != nil {
		return err
	}
	length := ec.Cache.CurrentLen()
	lease := pool.Acquire(ec.Scratch, length, true)
	defer lease.Release()
	return kernel.FusedAttention(query, keys, values, length, ec.Cache.HeadDim(), scale, causalUpTo, out, lease.Buf)
}
