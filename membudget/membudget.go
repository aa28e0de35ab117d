// Package membudget implements the pre-flight memory check spec.md
// §4.14 requires: given a model's shape parameters and quantization
// width, estimate parameter/activation/KV-cache/overhead bytes and
// fail before load if the total exceeds the configured available
// bytes.
//
// Grounded on llm/server_memory.go's initializeMemoryLayout
// (per-component weights+cache accounting, summed and compared against
// a budget), re-expressed here as a pure estimate function instead of
// a stateful layout built against a live ggml context.
package membudget

import (
	"fmt"

	"github.com/nanoforge/qmfrt/qerr"
)

// activationConstant is the per-(layer*seq*hidden) multiplier used to
// approximate transient activation memory (Q/K/V projections,
// attention scores, MLP intermediate) as a small constant multiple of
// the hidden-state footprint, the same order-of-magnitude shortcut
// server_memory.go's original estimate uses rather than a full graph
// walk.
const activationConstant = 12

// Estimate holds the shape and quantization parameters a model load
// is checked against.
type Estimate struct {
	VocabSize     int
	BlockSize     int // quant block size, unrelated to kvcache's token blocks
	EmbeddingDim  int
	Layers        int
	Heads         int
	HeadDim       int
	SeqLen        int
	QuantBitWidth int // bits per weight element: 32 (F32), 8, 4, or 6
	OverheadBytes uint64
}

// BytesPerElement maps a quantization bit width to the storage bytes
// per weight element: exactly bitWidth/8 for 32, 16, 8, 6 and 4 (so 6
// bits is 0.75 and 4 bits is 0.5, matching the packed-nibble and
// 6-bit-code storage §4.1 defines); any other width counts as 4 bytes.
// Per-block scale overhead is deliberately excluded here (scale arrays
// are a small fraction of total weight bytes and are covered by
// OverheadBytes).
func BytesPerElement(bitWidth int) float64 {
	switch bitWidth {
	case 32:
		return 4
	case 16:
		return 2
	case 8:
		return 1
	case 6:
		return 6.0 / 8.0
	case 4:
		return 4.0 / 8.0
	default:
		return 4
	}
}

// Breakdown is the per-component estimate §4.14 requires the pre-flight
// check to report.
type Breakdown struct {
	ParamsBytes      uint64
	ActivationsBytes uint64
	KVCacheBytes     uint64
	OverheadBytes    uint64
	TotalBytes       uint64
}

// Compute derives the Breakdown for e without comparing it against any
// budget (the budget comparison is Check's job, so a caller can
// inspect the breakdown even when it's over budget).
func Compute(e Estimate) Breakdown {
	params := uint64(float64(e.VocabSize*e.EmbeddingDim+e.Layers*e.EmbeddingDim*e.EmbeddingDim*4) * BytesPerElement(e.QuantBitWidth))

	activations := uint64(activationConstant * e.Layers * e.SeqLen * e.EmbeddingDim * 4)

	// KV cache: 2 (K and V) * layers * seq * heads * head_dim * 4 bytes
	// (FP32 storage, per spec.md §4.14 — the cache itself is never
	// quantized).
	kv := uint64(2 * e.Layers * e.SeqLen * e.Heads * e.HeadDim * 4)

	overhead := e.OverheadBytes

	return Breakdown{
		ParamsBytes:      params,
		ActivationsBytes: activations,
		KVCacheBytes:     kv,
		OverheadBytes:    overhead,
		TotalBytes:       params + activations + kv + overhead,
	}
}

// Check computes the breakdown for e and fails with
// qerr.ErrResourceExhausted if its total exceeds availableBytes.
func Check(e Estimate, availableBytes uint64) (Breakdown, error) {
	b := Compute(e)
	if b.TotalBytes > availableBytes {
		return b, fmt.Errorf("%w: estimated %d bytes exceeds available %d bytes (params=%d activations=%d kvcache=%d overhead=%d)",
			qerr.ErrResourceExhausted, b.TotalBytes, availableBytes,
			b.ParamsBytes, b.ActivationsBytes, b.KVCacheBytes, b.OverheadBytes)
	}
	return b, nil
}
