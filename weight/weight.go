// Package weight provides WeightTensor, the uniform handle engine code
// uses for a named matrix regardless of whether it is stored FP32 or
// in one of the quant package's block-quantized schemes. Dispatch to
// the fused quantized matmul or the dense FP32 matvec kernel happens
// once, here, so callers never branch on scheme.
//
// Grounded on fs/ggml/ggml_tensor.go's Kind-dispatch-to-size/stride
// pattern (generalized here to mat_mul/to_fp32 dispatch instead of
// tensor-graph stride computation, since this module has no graph).
package weight

import (
	"github.com/nanoforge/qmfrt/kernel"
	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/quant"
)

// SchemeF32 names the identity (unquantized) storage scheme in
// contexts that expect a scheme string, e.g. QMF tensor directory
// entries and membudget reporting.
const SchemeF32 = "F32"

// Tensor is a named weight matrix, either FP32 or quantized.
type Tensor struct {
	Name string
	Rows int
	Cols int

	fp32 []float32   // non-nil iff unquantized
	q    quant.Tensor // non-nil iff quantized
}

// NewFP32 wraps a row-major FP32 matrix. len(data) must equal rows*cols.
func NewFP32(name string, data []float32, rows, cols int) (*Tensor, error) {
	if rows <= 0 || cols <= 0 || len(data) != rows*cols {
		return nil, qerr.ErrDimensionMismatch
	}
	return &Tensor{Name: name, Rows: rows, Cols: cols, fp32: data}, nil
}

// NewQuantized wraps an already-quantized matrix.
func NewQuantized(name string, q quant.Tensor) *Tensor {
	return &Tensor{Name: name, Rows: q.Rows(), Cols: q.Cols(), q: q}
}

// IsQuantized reports whether the tensor is stored in a block-quantized
// scheme rather than FP32.
func (t *Tensor) IsQuantized() bool { return t.q != nil }

// Quant returns the underlying quant.Tensor, or nil if the tensor is
// stored FP32. Container codecs use this to serialize the exact
// per-scheme byte layout without a full dequantize round trip.
func (t *Tensor) Quant() quant.Tensor { return t.q }

// Scheme returns the storage scheme name ("F32" or one of the
// quant.Scheme names).
func (t *Tensor) Scheme() string {
	if t.q == nil {
		return SchemeF32
	}
	return t.q.Scheme().String()
}

// Bytes reports the storage footprint of the tensor's payload.
func (t *Tensor) Bytes() int {
	if t.q != nil {
		return t.q.Bytes()
	}
	return len(t.fp32) * 4
}

// MatMul computes out (length Rows) = T * x (length Cols), dispatching
// to the fused quantized kernel or the dense FP32 matvec kernel
// depending on storage.
func (t *Tensor) MatMul(x, out []float32) error {
	if len(x) != t.Cols || len(out) != t.Rows {
		return qerr.ErrDimensionMismatch
	}
	if t.q != nil {
		return kernel.FusedMatMul(t.q, x, out)
	}
	return kernel.MatVec(t.fp32, t.Rows, t.Cols, x, out)
}

// Dequantize returns the full row-major FP32 matrix, materializing it
// if the tensor is quantized. Callers on the hot path should prefer
// MatMul, which for Q8_0 tensors never materializes the full matrix
// (for the other quantized schemes kernel.FusedMatMul dequantizes the
// whole matrix once per output row).
func (t *Tensor) Dequantize() []float32 {
	if t.q != nil {
		return t.q.Dequantize()
	}
	out := make([]float32, len(t.fp32))
	copy(out, t.fp32)
	return out
}

// Quantize replaces an FP32 tensor's storage with a quantized encoding
// in the given scheme, returning a new Tensor (the receiver is left
// untouched).
func (t *Tensor) Quantize(scheme quant.Scheme) (*Tensor, error) {
	var src []float32
	if t.q != nil {
		src = t.q.Dequantize()
	} else {
		src = t.fp32
	}
	q, err := quant.Quantize(scheme, src, t.Rows, t.Cols)
	if err != nil {
		return nil, err
	}
	return NewQuantized(t.Name, q), nil
}
