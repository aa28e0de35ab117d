package kernel

import (
	"math"

	"github.com/nanoforge/qmfrt/qerr"
)

// FusedAttention computes scaled dot-product attention for a single
// query against seqLen cached key/value rows (each headDim wide, flat
// row-major), fusing the QK^T score pass, softmax, and the V-weighted
// sum into one call rather than materializing an intermediate score
// matrix beyond the seqLen-long scratch row.
//
// If causalUpTo >= 0, only keys[0:causalUpTo+1] are attended to
// (decode-time causal masking against a partially filled KV cache);
// pass -1 to attend to the full seqLen.
//
// scratch, if non-nil, must have length >= seqLen and is reused for the
// attention scores to avoid an allocation per call; pass nil to let the
// kernel allocate its own.
func FusedAttention(query []float32, keys, values []float32, seqLen, headDim int, scale float32, causalUpTo int, out []float32, scratch []float32) error {
	if len(query) != headDim || len(out) != headDim {
		return qerr.ErrDimensionMismatch
	}
	if len(keys) != seqLen*headDim || len(values) != seqLen*headDim {
		return qerr.ErrDimensionMismatch
	}
	limit := seqLen
	if causalUpTo >= 0 && causalUpTo+1 < limit {
		limit = causalUpTo + 1
	}
	if limit <= 0 {
		for i := range out {
			out[i] = 0
		}
		return nil
	}

	scores := scratch
	if scores == nil || len(scores) < limit {
		scores = make([]float32, limit)
	} else {
		scores = scores[:limit]
	}

	for t := 0; t < limit; t++ {
		row := keys[t*headDim : (t+1)*headDim]
		var dot float32
		for d := 0; d < headDim; d++ {
			dot += query[d] * row[d]
		}
		scores[t] = dot * scale
	}
	Softmax(scores)

	for i := range out {
		out[i] = 0
	}
	for t := 0; t < limit; t++ {
		w := scores[t]
		if w == 0 {
			continue
		}
		row := values[t*headDim : (t+1)*headDim]
		for d := 0; d < headDim; d++ {
			out[d] += w * row[d]
		}
	}
	return nil
}

// DefaultScale returns the conventional 1/sqrt(headDim) attention
// scale factor.
func DefaultScale(headDim int) float32 {
	return float32(1.0 / math.Sqrt(float64(headDim)))
}
